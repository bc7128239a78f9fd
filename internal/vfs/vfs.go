package vfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/user"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/security"
	"github.com/illarion/cloak/internal/vault"
)

const (
	// IndexKey is the engine metadata key holding the path index
	IndexKey = "vfs.index"

	DefaultMaxFindResults = 1000

	indexVersion = 1
	dirMode      = fs.ModeDir | 0755
	fileMode     = fs.FileMode(0644)
)

var (
	ErrNotFound    = errors.New("no such file or directory")
	ErrExists      = errors.New("file exists")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrRoot        = errors.New("operation not permitted on the root directory")
	ErrInvalidMove = errors.New("cannot move a directory into itself")
	ErrNotMounted  = errors.New("file system is not mounted")
)

// Store is the encrypted file store a FileSystem is mounted on.
// *vault.Engine implements it.
type Store interface {
	IsUnlocked() bool
	AddFile(name string, content []byte) error
	ExtractFile(name string) ([]byte, error)
	RemoveFile(name string) error
	ListFiles() ([]vault.FileInfo, error)
	Metadata(key string) ([]byte, error)
	SetMetadata(key string, value []byte) error
	Save() error
}

// Entry describes one file or directory
type Entry struct {
	Path     string      `json:"path"`
	Size     int64       `json:"size"`
	Created  time.Time   `json:"created"`
	Modified time.Time   `json:"modified"`
	IsDir    bool        `json:"is_dir"`
	Mode     fs.FileMode `json:"mode"`
	Owner    string      `json:"owner"`
	Group    string      `json:"group"`
	Blob     string      `json:"blob,omitempty"`
}

// Name returns the last path element
func (e Entry) Name() string {
	if e.Path == "/" {
		return "/"
	}
	return path.Base(e.Path)
}

type index struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Options configures Mount
type Options struct {
	MaxFindResults int
	Owner          string
	Group          string
	Logger         *logrus.Logger
	Now            func() time.Time
}

// FileSystem maps a hierarchical namespace onto a Store. Changes live in
// memory until Sync.
type FileSystem struct {
	mu      sync.Mutex
	store   Store
	entries map[string]*Entry
	opts    Options
	logger  *logrus.Logger
	mounted bool
	dirty   bool
}

// Mount loads the path index from an unlocked store, creating a root entry
// for a fresh store. Store files named by an absolute path that the index
// does not reference are adopted together with their parent directories.
func Mount(store Store, opts Options) (*FileSystem, error) {
	if !store.IsUnlocked() {
		return nil, vault.ErrLocked
	}

	if opts.MaxFindResults <= 0 {
		opts.MaxFindResults = DefaultMaxFindResults
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Owner == "" || opts.Group == "" {
		owner, group := currentUser()
		if opts.Owner == "" {
			opts.Owner = owner
		}
		if opts.Group == "" {
			opts.Group = group
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	f := &FileSystem{store: store, opts: opts, logger: logger}
	if err := f.load(); err != nil {
		return nil, err
	}
	if err := f.adopt(); err != nil {
		return nil, err
	}
	f.mounted = true

	logger.WithFields(logrus.Fields{
		"event":   "vfs_mounted",
		"entries": len(f.entries),
	}).Debug("File system mounted")
	return f, nil
}

func currentUser() (string, string) {
	u, err := user.Current()
	if err != nil {
		return "user", "user"
	}
	group := u.Gid
	if g, err := user.LookupGroupId(u.Gid); err == nil {
		group = g.Name
	}
	return u.Username, group
}

func (f *FileSystem) load() error {
	raw, err := f.store.Metadata(IndexKey)
	if err != nil {
		return err
	}
	if raw == nil {
		now := f.opts.Now()
		f.entries = map[string]*Entry{"/": f.newDir("/", now)}
		f.dirty = true
		return nil
	}

	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("failed to decode file index: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	if _, ok := idx.Entries["/"]; !ok {
		idx.Entries["/"] = f.newDir("/", f.opts.Now())
		f.dirty = true
	}
	for p, e := range idx.Entries {
		e.Path = p
	}
	f.entries = idx.Entries
	return nil
}

func (f *FileSystem) adopt() error {
	files, err := f.store.ListFiles()
	if err != nil {
		return err
	}
	referenced := make(map[string]bool, len(f.entries))
	for _, e := range f.entries {
		if e.Blob != "" {
			referenced[e.Blob] = true
		}
	}

	for _, file := range files {
		if referenced[file.Name] || !strings.HasPrefix(file.Name, "/") {
			continue
		}
		clean, err := security.CleanVirtual(file.Name)
		if err != nil || clean != file.Name || clean == "/" {
			continue
		}
		if _, exists := f.entries[clean]; exists {
			f.logger.WithFields(logrus.Fields{"event": "adopt_skipped", "path": clean}).Warn("Stored file shadows an existing entry")
			continue
		}
		parent, _ := security.SplitVirtual(clean)
		if err := f.mkdirAll(parent, file.Modified); err != nil {
			continue
		}
		f.entries[clean] = &Entry{
			Path:     clean,
			Size:     file.Size,
			Created:  file.Created,
			Modified: file.Modified,
			Mode:     fileMode,
			Owner:    f.opts.Owner,
			Group:    f.opts.Group,
			Blob:     file.Name,
		}
		f.dirty = true
	}
	return nil
}

func (f *FileSystem) newDir(p string, now time.Time) *Entry {
	return &Entry{
		Path:     p,
		Created:  now,
		Modified: now,
		IsDir:    true,
		Mode:     dirMode,
		Owner:    f.opts.Owner,
		Group:    f.opts.Group,
	}
}

// Sync writes the index into the store and saves the container
func (f *FileSystem) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.mounted {
		return ErrNotMounted
	}
	return f.sync()
}

func (f *FileSystem) sync() error {
	raw, err := json.Marshal(index{Version: indexVersion, Entries: f.entries})
	if err != nil {
		return fmt.Errorf("failed to encode file index: %w", err)
	}
	if err := f.store.SetMetadata(IndexKey, raw); err != nil {
		return err
	}
	if err := f.store.Save(); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Dirty reports whether there are changes not yet synced
func (f *FileSystem) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// Unmount syncs pending changes and detaches the file system. The store
// stays unlocked; locking it is the caller's decision.
func (f *FileSystem) Unmount() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.mounted {
		return ErrNotMounted
	}
	if f.dirty {
		if err := f.sync(); err != nil {
			return err
		}
	}
	f.mounted = false
	f.entries = nil
	f.logger.WithField("event", "vfs_unmounted").Debug("File system unmounted")
	return nil
}

// Usage summarizes the namespace
type Usage struct {
	Files int
	Dirs  int
	Bytes int64
}

// Usage counts files, directories and stored bytes
func (f *FileSystem) Usage() (Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var u Usage
	if !f.mounted {
		return u, ErrNotMounted
	}
	for _, e := range f.entries {
		if e.IsDir {
			u.Dirs++
		} else {
			u.Files++
			u.Bytes += e.Size
		}
	}
	return u, nil
}

// begin validates the mount state and cleans p. If the store was locked
// underneath, for example by auto-lock, the in-memory index is dropped
// and unsynced changes are lost.
func (f *FileSystem) begin(p string) (string, error) {
	if !f.mounted {
		return "", ErrNotMounted
	}
	if !f.store.IsUnlocked() {
		f.mounted = false
		f.dirty = false
		f.entries = nil
		f.logger.WithField("event", "vfs_store_locked").Warn("Store locked, file system detached")
		return "", vault.ErrLocked
	}
	return security.CleanVirtual(p)
}

func (f *FileSystem) lookup(clean string) (*Entry, error) {
	e, ok := f.entries[clean]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: clean, Err: ErrNotFound}
	}
	return e, nil
}

// parentDir returns the parent entry of clean, which must be a directory
func (f *FileSystem) parentDir(op, clean string) (*Entry, error) {
	parent, _ := security.SplitVirtual(clean)
	e, ok := f.entries[parent]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: parent, Err: ErrNotFound}
	}
	if !e.IsDir {
		return nil, &fs.PathError{Op: op, Path: parent, Err: ErrNotDir}
	}
	return e, nil
}

// children returns the direct children of dir
func (f *FileSystem) children(dir string) []*Entry {
	var out []*Entry
	for p, e := range f.entries {
		if p == "/" {
			continue
		}
		if parent, _ := security.SplitVirtual(p); parent == dir {
			out = append(out, e)
		}
	}
	return out
}

// subtree returns dir and all of its descendants sorted by path
func (f *FileSystem) subtree(dir string) []*Entry {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var out []*Entry
	for p, e := range f.entries {
		if p == dir || strings.HasPrefix(p, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name() < entries[j].Name()
	})
}
