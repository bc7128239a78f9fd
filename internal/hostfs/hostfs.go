package hostfs

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"

	"github.com/illarion/cloak/internal/security"
)

// FS is an absfs.FileSystem confined to a host directory. Paths are
// slash-separated and "/" names the confinement root, so an escape through
// "..", an absolute host path or a symlink is rejected by os.Root.
type FS struct {
	pv *security.PathValidator

	mu  sync.Mutex
	cwd string
}

var _ absfs.FileSystem = (*FS)(nil)

// New opens a filesystem rooted at dir
func New(dir string) (*FS, error) {
	pv, err := security.New(dir)
	if err != nil {
		return nil, err
	}
	return &FS{pv: pv, cwd: "/"}, nil
}

// Close releases the root handle
func (f *FS) Close() error {
	return f.pv.Close()
}

// HostPath returns the host directory the filesystem is confined to
func (f *FS) HostPath() string {
	return f.pv.Dir()
}

// resolve maps an absfs name to a path relative to the root
func (f *FS) resolve(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if !path.IsAbs(name) {
		f.mu.Lock()
		name = path.Join(f.cwd, name)
		f.mu.Unlock()
	}
	rel := strings.TrimPrefix(path.Clean(name), "/")
	if rel == "" {
		return ".", nil
	}
	clean, err := f.pv.ValidateAndNormalize(filepath.FromSlash(rel))
	if err != nil {
		return "", &os.PathError{Op: "resolve", Path: name, Err: err}
	}
	return filepath.FromSlash(clean), nil
}

func (f *FS) root() *os.Root {
	return f.pv.Root()
}

func (f *FS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	rel, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := f.root().OpenFile(rel, flag, perm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *FS) Open(name string) (absfs.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

func (f *FS) Create(name string) (absfs.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (f *FS) Mkdir(name string, perm os.FileMode) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	return f.root().Mkdir(rel, perm)
}

func (f *FS) MkdirAll(name string, perm os.FileMode) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	return f.root().MkdirAll(rel, perm)
}

func (f *FS) Remove(name string) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	return f.root().Remove(rel)
}

func (f *FS) RemoveAll(name string) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	if rel == "." {
		return &os.PathError{Op: "removeall", Path: name, Err: os.ErrPermission}
	}
	return f.root().RemoveAll(rel)
}

func (f *FS) Rename(oldpath, newpath string) error {
	from, err := f.resolve(oldpath)
	if err != nil {
		return err
	}
	to, err := f.resolve(newpath)
	if err != nil {
		return err
	}
	return f.root().Rename(from, to)
}

func (f *FS) Stat(name string) (os.FileInfo, error) {
	rel, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return f.root().Stat(rel)
}

func (f *FS) Chmod(name string, mode os.FileMode) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	return f.root().Chmod(rel, mode)
}

func (f *FS) Chtimes(name string, atime, mtime time.Time) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	return f.root().Chtimes(rel, atime, mtime)
}

func (f *FS) Chown(name string, uid, gid int) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	return f.root().Chown(rel, uid, gid)
}

func (f *FS) Truncate(name string, size int64) error {
	rel, err := f.resolve(name)
	if err != nil {
		return err
	}
	file, err := f.root().OpenFile(rel, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	rel, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadDir(f.root().FS(), filepath.ToSlash(rel))
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	rel, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return f.root().ReadFile(rel)
}

func (f *FS) Sub(dir string) (fs.FS, error) {
	rel, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	return fs.Sub(f.root().FS(), filepath.ToSlash(rel))
}

func (f *FS) Separator() uint8 {
	return '/'
}

func (f *FS) ListSeparator() uint8 {
	return ':'
}

func (f *FS) Chdir(dir string) error {
	info, err := f.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "chdir", Path: dir, Err: fs.ErrInvalid}
	}
	if !path.IsAbs(dir) {
		wd, _ := f.Getwd()
		dir = path.Join(wd, dir)
	}
	f.mu.Lock()
	f.cwd = path.Clean(dir)
	f.mu.Unlock()
	return nil
}

func (f *FS) Getwd() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cwd, nil
}

// TempDir is the root; the host temp directory is outside the confinement
func (f *FS) TempDir() string {
	return "/"
}
