package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/illarion/cloak/internal/clipboard"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/vfs"
)

// Clip copies a text file from the container to the clipboard and clears
// it after timeout or on interrupt
func Clip(ctx context.Context, file, vpath string, timeout time.Duration) {
	data := readText(file, vpath)
	defer crypto.ClearBytes(data)

	m := clipboard.NewManager()
	defer m.Close()
	if err := m.Copy(string(data), timeout); err != nil {
		HandleError(err)
	}

	fmt.Fprintf(os.Stderr, "copied: %s (clears in %s)\n", vpath, timeout)
	select {
	case <-m.Cleared():
	case <-ctx.Done():
		if err := m.ClearNow(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s\n", err)
		}
	}
	fmt.Fprintln(os.Stderr, "clipboard cleared")
}

// readText reads a text file and closes the container before returning
func readText(file, vpath string) []byte {
	c, fsys := mount(file)
	defer c.Close()

	data, err := fsys.ReadFile(vpath)
	if err != nil {
		Fail(c, err)
	}
	if !vfs.IsText(data) {
		crypto.ClearBytes(data)
		Fail(c, fmt.Errorf("%s is not a text file", vpath))
	}
	return data
}
