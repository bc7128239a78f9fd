package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illarion/cloak/internal/antiforensics"
)

// Shred securely deletes host files, and directories when recursive is set
func Shred(paths []string, passes int, recursive bool) {
	failed := false
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s\n", err)
			failed = true
			continue
		}
		if info.IsDir() {
			if !recursive {
				fmt.Fprintf(os.Stderr, "warning: %s is a directory (use -r)\n", p)
				failed = true
				continue
			}
			err = antiforensics.SecureDeleteDir(p, passes)
		} else {
			err = antiforensics.SecureDelete(p, passes)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to shred %s: %s\n", p, err)
			failed = true
			continue
		}
		fmt.Printf("shredded: %s\n", p)
	}
	if failed {
		Exit(1)
	}
}

// Decoys writes count plausible-looking random files into dir
func Decoys(dir string, count, minSize, maxSize int) {
	paths, err := antiforensics.GenerateDecoyFiles(dir, count, minSize, maxSize)
	if err != nil {
		HandleError(err)
	}
	for _, p := range paths {
		fmt.Printf("created: %s\n", p)
	}
}

// Retime rewrites host file timestamps. With referenceDir set the files take
// the profile of that directory, otherwise a random time within window is
// used. A positive gap then shifts all files back together.
func Retime(paths []string, referenceDir string, window, gap time.Duration) {
	for _, p := range paths {
		var (
			t   time.Time
			err error
		)
		if referenceDir != "" {
			t, err = antiforensics.BlendWithSystem(p, referenceDir)
		} else {
			t, err = antiforensics.RandomizeTimestamps(p, window)
		}
		if err != nil {
			HandleError(err)
		}
		fmt.Printf("retimed: %s (%s)\n", p, t.Format(time.RFC3339))
	}

	if gap > 0 {
		shift, err := antiforensics.CreateTimelineGap(paths, gap, gap*2)
		if err != nil {
			HandleError(err)
		}
		fmt.Printf("shifted %d file(s) back by %s\n", len(paths), shift)
	}
}

// WipeFree fills the free space of the file system holding dir with random
// data and removes it again
func WipeFree(ctx context.Context, file, dir string, maxBytes int64) {
	c := OpenCloak(file)
	defer c.Close()

	fmt.Fprintf(os.Stderr, "Wiping free space on %s, this can take a long time...\n", dir)
	stats, err := c.WipeFreeSpace(ctx, dir, maxBytes)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "warning: interrupted after %s\n", formatSize(stats.BytesWritten))
		c.Close()
		Exit(1)
	}
	if err != nil {
		Fail(c, err)
	}

	fmt.Printf("wiped: %s in %d file(s)", formatSize(stats.BytesWritten), stats.Files)
	if stats.DiskFull {
		fmt.Print(" (disk full)")
	}
	fmt.Println()
}

// Probe runs the environment heuristics and reports what they found
func Probe() {
	findings := []antiforensics.Finding{
		antiforensics.CheckDebugger(),
		antiforensics.CheckVM(),
		antiforensics.CheckForensicTools(),
	}
	for _, f := range findings {
		if !f.Detected {
			fmt.Printf("%-16s not detected\n", f.Name+":")
			continue
		}
		fmt.Printf("%-16s detected (%s)\n", f.Name+":", strings.Join(f.Indicators, ", "))
	}
}
