package antiforensics

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultPasses = 3
	chunkSize     = 64 * 1024
)

var ErrIsDirectory = errors.New("path is a directory")

// SecureDelete overwrites a regular file passes times and removes it.
// Pass 1 writes 0x00, pass 2 writes 0xFF, every further pass writes random
// bytes. Each pass is synced to storage before the next begins. The file is
// renamed to a random name before removal so the directory entry does not
// keep the original name.
func SecureDelete(path string, passes int) error {
	if passes < 1 {
		passes = 1
	}

	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	// Symlinks and special files are unlinked without following them
	if info.Mode().IsRegular() && info.Size() > 0 {
		if err := overwrite(path, info.Size(), passes); err != nil {
			return err
		}
	}

	target := path
	if renamed, err := randomName(path); err == nil {
		if err := os.Rename(path, renamed); err == nil {
			target = renamed
		}
	}

	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func overwrite(path string, size int64, passes int) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open file for overwrite: %w", err)
	}
	defer f.Close()

	for pass := 0; pass < passes; pass++ {
		var err error
		switch pass {
		case 0:
			err = overwritePattern(f, size, 0x00)
		case 1:
			err = overwritePattern(f, size, 0xFF)
		default:
			err = overwriteRandom(f, size)
		}
		if err != nil {
			return fmt.Errorf("overwrite pass %d failed: %w", pass+1, err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync pass %d: %w", pass+1, err)
		}
	}
	return nil
}

func overwritePattern(f *os.File, size int64, pattern byte) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = pattern
	}
	return writeN(f, buf, size, false)
}

func overwriteRandom(f *os.File, size int64) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return writeN(f, make([]byte, chunkSize), size, true)
}

func writeN(w io.Writer, buf []byte, size int64, random bool) error {
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		chunk := buf[:n]
		if random {
			if _, err := rand.Read(chunk); err != nil {
				return err
			}
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func randomName(path string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), hex.EncodeToString(b)), nil
}

// SecureDeleteDir securely deletes every file under dir, then removes the
// directories deepest first.
func SecureDeleteDir(dir string, passes int) error {
	var files, dirs []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	var errs []error
	for _, f := range files {
		if err := SecureDelete(f, passes); err != nil {
			errs = append(errs, err)
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		if err := os.Remove(d); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove directory: %w", err))
		}
	}
	return errors.Join(errs...)
}
