package vfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/absfs/absfs"
	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/security"
)

// ConflictPolicy decides what ImportTree does when a vault file already
// exists with different content
type ConflictPolicy int

const (
	ConflictOverwrite ConflictPolicy = iota // replace the vault file
	ConflictSkip                            // keep the vault file
	ConflictKeepBoth                        // import next to it under a new name
)

// ParseConflictPolicy maps a flag value to a ConflictPolicy
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(s) {
	case "", "overwrite":
		return ConflictOverwrite, nil
	case "skip":
		return ConflictSkip, nil
	case "keep-both", "both":
		return ConflictKeepBoth, nil
	default:
		return 0, fmt.Errorf("unknown conflict policy %q (use overwrite, skip or keep-both)", s)
	}
}

// TreeStats counts the work done by an import or export
type TreeStats struct {
	Files   int
	Dirs    int
	Skipped int
	Bytes   int64
}

// ExportTree writes the file or directory at vpath into hostDir on host.
// A directory's contents land directly in hostDir; a file lands in
// hostDir under its own name. Modification times are preserved.
func (f *FileSystem) ExportTree(ctx context.Context, vpath string, host absfs.FileSystem, hostDir string) (TreeStats, error) {
	var stats TreeStats

	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(vpath)
	if err != nil {
		return stats, err
	}
	root, err := f.lookup(clean)
	if err != nil {
		return stats, err
	}
	hostDir = path.Clean("/" + strings.ReplaceAll(hostDir, "\\", "/"))
	if err := host.MkdirAll(hostDir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create %s: %w", hostDir, err)
	}

	base := clean
	if !root.IsDir {
		base, _ = security.SplitVirtual(clean)
	}

	tree := []*Entry{root}
	if root.IsDir {
		tree = f.subtree(clean)
	}

	var dirs []*Entry
	for _, e := range tree {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, base), "/")
		target := path.Join(hostDir, rel)

		if e.IsDir {
			if err := host.MkdirAll(target, e.Mode.Perm()|0700); err != nil {
				return stats, fmt.Errorf("failed to create %s: %w", target, err)
			}
			dirs = append(dirs, e)
			stats.Dirs++
			continue
		}

		data, err := f.readFile(e.Path)
		if err != nil {
			return stats, err
		}
		err = writeHostFile(host, target, data, e.Mode.Perm())
		crypto.ClearBytes(data)
		if err != nil {
			return stats, err
		}
		if err := host.Chtimes(target, e.Modified, e.Modified); err != nil {
			f.logger.WithFields(logrus.Fields{"event": "chtimes_failed", "path": target, "error": err}).Debug("Failed to preserve modification time")
		}
		stats.Files++
		stats.Bytes += e.Size
	}

	// Deepest first so child writes do not bump parent times again
	for i := len(dirs) - 1; i >= 0; i-- {
		rel := strings.TrimPrefix(strings.TrimPrefix(dirs[i].Path, base), "/")
		_ = host.Chtimes(path.Join(hostDir, rel), dirs[i].Modified, dirs[i].Modified)
	}

	f.logger.WithFields(logrus.Fields{
		"event": "tree_exported",
		"files": stats.Files,
		"dirs":  stats.Dirs,
	}).Debug("Tree exported")
	return stats, nil
}

func writeHostFile(host absfs.FileSystem, target string, data []byte, perm fs.FileMode) error {
	if perm == 0 {
		perm = fileMode
	}
	file, err := host.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return file.Close()
}

// ImportTree copies hostDir from host into the vault at vpath, creating
// vpath and missing parents. A host file is imported to vpath itself, or
// into vpath when that is an existing directory. Host modification times
// and permission bits are kept.
func (f *FileSystem) ImportTree(ctx context.Context, host absfs.FileSystem, hostDir, vpath string, policy ConflictPolicy) (TreeStats, error) {
	var stats TreeStats

	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(vpath)
	if err != nil {
		return stats, err
	}
	hostDir = path.Clean("/" + strings.ReplaceAll(hostDir, "\\", "/"))
	info, err := host.Stat(hostDir)
	if err != nil {
		return stats, err
	}

	if !info.IsDir() {
		if e, ok := f.entries[clean]; ok && e.IsDir {
			clean = path.Join(clean, path.Base(hostDir))
		} else {
			parent, _ := security.SplitVirtual(clean)
			if err := f.mkdirAll(parent, f.opts.Now()); err != nil {
				return stats, err
			}
		}
		err := f.importFile(host, hostDir, clean, info, policy, &stats)
		return stats, err
	}

	if err := f.mkdirAll(clean, info.ModTime()); err != nil {
		return stats, err
	}
	if err := f.importDir(ctx, host, hostDir, clean, policy, &stats); err != nil {
		return stats, err
	}

	f.logger.WithFields(logrus.Fields{
		"event":   "tree_imported",
		"files":   stats.Files,
		"dirs":    stats.Dirs,
		"skipped": stats.Skipped,
	}).Debug("Tree imported")
	return stats, nil
}

func (f *FileSystem) importDir(ctx context.Context, host absfs.FileSystem, hostDir, vdir string, policy ConflictPolicy, stats *TreeStats) error {
	dir, err := host.Open(hostDir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", hostDir, err)
	}
	infos, err := dir.Readdir(-1)
	dir.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", hostDir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		hostPath := path.Join(hostDir, name)
		target, err := security.CleanVirtual(path.Join(vdir, name))
		if err != nil {
			stats.Skipped++
			continue
		}

		switch {
		case info.IsDir():
			if err := f.mkdirAll(target, info.ModTime()); err != nil {
				return err
			}
			f.entries[target].Mode = fs.ModeDir | info.Mode().Perm()
			stats.Dirs++
			if err := f.importDir(ctx, host, hostPath, target, policy, stats); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := f.importFile(host, hostPath, target, info, policy, stats); err != nil {
				return err
			}
		default:
			// Symlinks, devices and sockets are not stored
			stats.Skipped++
		}
	}
	return nil
}

func (f *FileSystem) importFile(host absfs.FileSystem, hostPath, target string, info fs.FileInfo, policy ConflictPolicy, stats *TreeStats) error {
	file, err := host.Open(hostPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", hostPath, err)
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", hostPath, err)
	}
	defer crypto.ClearBytes(data)

	if existing, ok := f.entries[target]; ok && !existing.IsDir {
		current, err := f.readFile(target)
		if err != nil {
			return err
		}
		same := bytes.Equal(current, data)
		crypto.ClearBytes(current)
		if same {
			stats.Skipped++
			return nil
		}
		switch policy {
		case ConflictSkip:
			stats.Skipped++
			return nil
		case ConflictKeepBoth:
			target = f.freeName(target)
		}
	}

	if err := f.writeFile(target, data, info.ModTime(), info.Mode().Perm()); err != nil {
		return err
	}
	stats.Files++
	stats.Bytes += int64(len(data))
	return nil
}

// freeName returns the first unused "<name>.imported[.N]" sibling of p
func (f *FileSystem) freeName(p string) string {
	candidate := p + ".imported"
	for i := 2; ; i++ {
		if _, ok := f.entries[candidate]; !ok {
			return candidate
		}
		candidate = fmt.Sprintf("%s.imported.%d", p, i)
	}
}
