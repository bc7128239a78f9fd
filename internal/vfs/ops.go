package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/security"
	"github.com/illarion/cloak/internal/vault"
)

// Mkdir creates a directory. The parent must exist unless parents is set.
// Creating an existing directory is not an error.
func (f *FileSystem) Mkdir(p string, parents bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(p)
	if err != nil {
		return err
	}
	if e, ok := f.entries[clean]; ok {
		if e.IsDir {
			return nil
		}
		return &fs.PathError{Op: "mkdir", Path: clean, Err: ErrExists}
	}

	now := f.opts.Now()
	if parents {
		return f.mkdirAll(clean, now)
	}
	if _, err := f.parentDir("mkdir", clean); err != nil {
		return err
	}
	f.entries[clean] = f.newDir(clean, now)
	f.dirty = true
	return nil
}

// mkdirAll creates clean and any missing parents
func (f *FileSystem) mkdirAll(clean string, now time.Time) error {
	if e, ok := f.entries[clean]; ok {
		if !e.IsDir {
			return &fs.PathError{Op: "mkdir", Path: clean, Err: ErrNotDir}
		}
		return nil
	}
	parent, _ := security.SplitVirtual(clean)
	if err := f.mkdirAll(parent, now); err != nil {
		return err
	}
	f.entries[clean] = f.newDir(clean, now)
	f.dirty = true
	return nil
}

// WriteFile stores data at p, creating or replacing a file. The parent
// directory must exist.
func (f *FileSystem) WriteFile(p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(p)
	if err != nil {
		return err
	}
	return f.writeFile(clean, data, f.opts.Now(), 0)
}

func (f *FileSystem) writeFile(clean string, data []byte, modified time.Time, mode fs.FileMode) error {
	if clean == "/" {
		return &fs.PathError{Op: "write", Path: clean, Err: ErrIsDir}
	}
	existing, ok := f.entries[clean]
	if ok && existing.IsDir {
		return &fs.PathError{Op: "write", Path: clean, Err: ErrIsDir}
	}
	if _, err := f.parentDir("write", clean); err != nil {
		return err
	}

	blob := uuid.NewString()
	if ok {
		blob = existing.Blob
	}
	if err := f.store.AddFile(blob, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", clean, err)
	}

	if ok {
		existing.Size = int64(len(data))
		existing.Modified = modified
		if mode != 0 {
			existing.Mode = mode
		}
	} else {
		if mode == 0 {
			mode = fileMode
		}
		f.entries[clean] = &Entry{
			Path:     clean,
			Size:     int64(len(data)),
			Created:  modified,
			Modified: modified,
			Mode:     mode,
			Owner:    f.opts.Owner,
			Group:    f.opts.Group,
			Blob:     blob,
		}
	}
	f.dirty = true
	return nil
}

// ReadFile returns the content of the file at p
func (f *FileSystem) ReadFile(p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(p)
	if err != nil {
		return nil, err
	}
	return f.readFile(clean)
}

func (f *FileSystem) readFile(clean string) ([]byte, error) {
	e, err := f.lookup(clean)
	if err != nil {
		return nil, err
	}
	if e.IsDir {
		return nil, &fs.PathError{Op: "read", Path: clean, Err: ErrIsDir}
	}
	return f.store.ExtractFile(e.Blob)
}

// Delete removes a file or an empty directory. With recursive set a
// directory and everything below it is removed, deepest entries first.
func (f *FileSystem) Delete(p string, recursive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(p)
	if err != nil {
		return err
	}
	if clean == "/" {
		return ErrRoot
	}
	e, err := f.lookup(clean)
	if err != nil {
		return err
	}

	if !e.IsDir {
		return f.remove(e)
	}
	if len(f.children(clean)) > 0 && !recursive {
		return &fs.PathError{Op: "delete", Path: clean, Err: ErrNotEmpty}
	}

	tree := f.subtree(clean)
	for i := len(tree) - 1; i >= 0; i-- {
		if err := f.remove(tree[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileSystem) remove(e *Entry) error {
	if !e.IsDir && e.Blob != "" {
		if err := f.store.RemoveFile(e.Blob); err != nil && !errors.Is(err, vault.ErrFileNotFound) {
			return fmt.Errorf("failed to remove %s: %w", e.Path, err)
		}
	}
	delete(f.entries, e.Path)
	f.dirty = true
	return nil
}

// Move renames src to dst, carrying any nested entries. Only the index
// changes; stored ciphertext is untouched.
func (f *FileSystem) Move(src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, to, err := f.prepareTransfer("move", src, dst)
	if err != nil {
		return err
	}
	if strings.HasPrefix(to, from+"/") {
		return &fs.PathError{Op: "move", Path: to, Err: ErrInvalidMove}
	}

	for _, e := range f.subtree(from) {
		delete(f.entries, e.Path)
		e.Path = to + strings.TrimPrefix(e.Path, from)
		f.entries[e.Path] = e
	}
	f.entries[to].Modified = f.opts.Now()
	f.dirty = true
	return nil
}

// Copy duplicates src at dst by reading and re-writing every file
func (f *FileSystem) Copy(src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, to, err := f.prepareTransfer("copy", src, dst)
	if err != nil {
		return err
	}
	if strings.HasPrefix(to, from+"/") {
		return &fs.PathError{Op: "copy", Path: to, Err: ErrInvalidMove}
	}

	now := f.opts.Now()
	for _, e := range f.subtree(from) {
		target := to + strings.TrimPrefix(e.Path, from)
		if e.IsDir {
			d := f.newDir(target, now)
			d.Mode = e.Mode
			f.entries[target] = d
			f.dirty = true
			continue
		}
		data, err := f.readFile(e.Path)
		if err != nil {
			return err
		}
		err = f.writeFile(target, data, now, e.Mode)
		crypto.ClearBytes(data)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *FileSystem) prepareTransfer(op, src, dst string) (string, string, error) {
	from, err := f.begin(src)
	if err != nil {
		return "", "", err
	}
	to, err := security.CleanVirtual(dst)
	if err != nil {
		return "", "", err
	}
	if from == "/" || to == "/" {
		return "", "", ErrRoot
	}
	if _, err := f.lookup(from); err != nil {
		return "", "", err
	}
	if _, ok := f.entries[to]; ok {
		return "", "", &fs.PathError{Op: op, Path: to, Err: ErrExists}
	}
	if _, err := f.parentDir(op, to); err != nil {
		return "", "", err
	}
	return from, to, nil
}

// ListDir returns the direct children of a directory, directories first,
// then by name
func (f *FileSystem) ListDir(p string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(p)
	if err != nil {
		return nil, err
	}
	e, err := f.lookup(clean)
	if err != nil {
		return nil, err
	}
	if !e.IsDir {
		return nil, &fs.PathError{Op: "list", Path: clean, Err: ErrNotDir}
	}

	children := f.children(clean)
	out := make([]Entry, 0, len(children))
	for _, c := range children {
		out = append(out, *c)
	}
	sortEntries(out)
	return out, nil
}

// Find returns entries below root whose name matches the glob pattern,
// sorted by path and capped at MaxFindResults
func (f *FileSystem) Find(pattern, root string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(root)
	if err != nil {
		return nil, err
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if _, err := f.lookup(clean); err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range f.subtree(clean) {
		if e.Path == "/" {
			continue
		}
		if ok, _ := path.Match(pattern, e.Name()); ok {
			out = append(out, *e)
			if len(out) >= f.opts.MaxFindResults {
				f.logger.WithFields(logrus.Fields{"event": "find_capped", "limit": f.opts.MaxFindResults}).Debug("Find result limit reached")
				break
			}
		}
	}
	return out, nil
}

// GetInfo returns the entry at p
func (f *FileSystem) GetInfo(p string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean, err := f.begin(p)
	if err != nil {
		return Entry{}, err
	}
	e, err := f.lookup(clean)
	if err != nil {
		return Entry{}, err
	}
	return *e, nil
}

// Walk calls fn for every entry below root in path order
func (f *FileSystem) Walk(root string, fn func(Entry) error) error {
	f.mu.Lock()
	clean, err := f.begin(root)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	if _, err := f.lookup(clean); err != nil {
		f.mu.Unlock()
		return err
	}
	tree := f.subtree(clean)
	snapshot := make([]Entry, len(tree))
	for i, e := range tree {
		snapshot[i] = *e
	}
	f.mu.Unlock()

	for _, e := range snapshot {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}
