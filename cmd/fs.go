package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/illarion/cloak/internal/core"
	"github.com/illarion/cloak/internal/vfs"
)

// mount unlocks the container and returns its file system. The caller must
// Close c.
func mount(file string) (*core.Cloak, *vfs.FileSystem) {
	c, _ := UnlockCloak(file)
	fsys, err := c.FS()
	if err != nil {
		Fail(c, err)
	}
	return c, fsys
}

// Ls lists a directory inside the container
func Ls(file, vpath string, long bool) {
	c, fsys := mount(file)
	defer c.Close()

	entries, err := fsys.ListDir(vpath)
	if err != nil {
		Fail(c, err)
	}
	if len(entries) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir {
			name += "/"
		}
		if !long {
			fmt.Println(name)
			continue
		}
		fmt.Printf("%s %-8s %-8s %10s %s %s\n",
			e.Mode, e.Owner, e.Group, formatSize(e.Size),
			e.Modified.Format("2006-01-02 15:04"), name)
	}
}

// Tree prints the directory hierarchy below root
func Tree(file, root string) {
	c, fsys := mount(file)
	defer c.Close()

	info, err := fsys.GetInfo(root)
	if err != nil {
		Fail(c, err)
	}
	fmt.Println(info.Path)
	if info.IsDir {
		if err := printTree(fsys, info.Path, 1); err != nil {
			Fail(c, err)
		}
	}

	usage, err := fsys.Usage()
	if err == nil {
		fmt.Printf("\n%d directories, %d files, %s\n", usage.Dirs, usage.Files, formatSize(usage.Bytes))
	}
}

func printTree(fsys *vfs.FileSystem, dir string, depth int) error {
	entries, err := fsys.ListDir(dir)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		if !e.IsDir {
			fmt.Printf("%s%s\n", indent, e.Name())
			continue
		}
		fmt.Printf("%s%s/\n", indent, e.Name())
		if err := printTree(fsys, e.Path, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Add stores a host file in the container at vpath
func Add(ctx context.Context, file, hostPath, vpath, conflict string) {
	info, err := os.Stat(hostPath)
	if err != nil {
		HandleError(err)
	}
	if info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is a directory\n", hostPath)
		fmt.Fprintf(os.Stderr, "Use 'cloak import' to copy a directory tree\n")
		Exit(1)
	}
	importPath(ctx, file, hostPath, vpath, conflict)
}

// Import copies a host directory tree into the container at vpath, or at
// /<dir name> when vpath is empty
func Import(ctx context.Context, file, hostDir, vpath, conflict string) {
	if vpath == "" {
		abs, err := filepath.Abs(hostDir)
		if err != nil {
			HandleError(err)
		}
		vpath = "/" + filepath.Base(abs)
	}
	importPath(ctx, file, hostDir, vpath, conflict)
}

func importPath(ctx context.Context, file, hostPath, vpath, conflict string) {
	policy, err := vfs.ParseConflictPolicy(conflict)
	if err != nil {
		HandleError(err)
	}

	c, _ := mount(file)
	defer c.Close()

	stats, err := c.Import(ctx, hostPath, vpath, policy)
	if err != nil {
		Fail(c, err)
	}

	fmt.Printf("added: %s (%d files, %s)\n", vpath, stats.Files, formatSize(stats.Bytes))
	if stats.Skipped > 0 {
		fmt.Printf("skipped: %d existing file(s)\n", stats.Skipped)
	}
}

// Get writes a file or directory from the container into hostDir
func Get(ctx context.Context, file, vpath, hostDir string) {
	Export(ctx, file, vpath, hostDir)
}

// Export writes the tree at vpath into hostDir
func Export(ctx context.Context, file, vpath, hostDir string) {
	c, _ := mount(file)
	defer c.Close()

	stats, err := c.Export(ctx, vpath, hostDir)
	if err != nil {
		Fail(c, err)
	}

	fmt.Printf("extracted: %s -> %s (%d files, %s)\n", vpath, hostDir, stats.Files, formatSize(stats.Bytes))
}

// Remove deletes a file or, with recursive, a directory tree
func Remove(file, vpath string, recursive bool) {
	c, fsys := mount(file)
	defer c.Close()

	if err := fsys.Delete(vpath, recursive); err != nil {
		Fail(c, err)
	}
	Commit(c)

	fmt.Printf("removed: %s\n", vpath)
}

// Mkdir creates a directory, with parents when asked
func Mkdir(file, vpath string, parents bool) {
	c, fsys := mount(file)
	defer c.Close()

	if err := fsys.Mkdir(vpath, parents); err != nil {
		Fail(c, err)
	}
	Commit(c)

	fmt.Printf("created: %s/\n", strings.TrimSuffix(vpath, "/"))
}

// Move renames a file or directory inside the container
func Move(file, src, dst string) {
	c, fsys := mount(file)
	defer c.Close()

	if err := fsys.Move(src, dst); err != nil {
		Fail(c, err)
	}
	Commit(c)

	fmt.Printf("moved: %s -> %s\n", src, dst)
}

// Copy duplicates a file or directory inside the container
func Copy(file, src, dst string) {
	c, fsys := mount(file)
	defer c.Close()

	if err := fsys.Copy(src, dst); err != nil {
		Fail(c, err)
	}
	Commit(c)

	fmt.Printf("copied: %s -> %s\n", src, dst)
}

// Find lists entries below root whose name matches pattern
func Find(file, pattern, root string) {
	c, fsys := mount(file)
	defer c.Close()

	entries, err := fsys.Find(pattern, root)
	if err != nil {
		Fail(c, err)
	}
	if len(entries) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, e := range entries {
		if e.IsDir {
			fmt.Printf("%s/\n", e.Path)
		} else {
			fmt.Println(e.Path)
		}
	}
}

// Info prints the metadata of one entry
func Info(file, vpath string) {
	c, fsys := mount(file)
	defer c.Close()

	e, err := fsys.GetInfo(vpath)
	if err != nil {
		Fail(c, err)
	}

	kind := "file"
	if e.IsDir {
		kind = "directory"
	}
	fmt.Printf("Path:     %s\n", e.Path)
	fmt.Printf("Type:     %s\n", kind)
	if e.IsDir {
		var files int
		var size int64
		err := fsys.Walk(e.Path, func(child vfs.Entry) error {
			if !child.IsDir {
				files++
				size += child.Size
			}
			return nil
		})
		if err != nil {
			Fail(c, err)
		}
		fmt.Printf("Contents: %d files, %s\n", files, formatSize(size))
	} else {
		fmt.Printf("Size:     %s\n", formatSize(e.Size))
	}
	fmt.Printf("Mode:     %s\n", e.Mode)
	fmt.Printf("Owner:    %s:%s\n", e.Owner, e.Group)
	fmt.Printf("Created:  %s\n", e.Created.Format(time.RFC3339))
	fmt.Printf("Modified: %s\n", e.Modified.Format(time.RFC3339))
}

// Diff compares a container file with a host file
func Diff(file, vpath, hostPath string) {
	hostData, err := os.ReadFile(hostPath)
	if err != nil {
		HandleError(fmt.Errorf("failed to read %s: %w", hostPath, err))
	}

	c, fsys := mount(file)
	defer c.Close()

	out, err := fsys.Diff(vpath, hostData)
	if err != nil {
		Fail(c, err)
	}
	if out == "" {
		fmt.Println("no changes")
		return
	}
	fmt.Print(out)
}

// Wipe destroys the container after the confirmation token is checked
func Wipe(file, confirmation string) {
	c := OpenCloak(file)
	defer c.Close()
	if !c.Engine().Exists() {
		Fail(c, core.ErrNotInitialized)
	}

	if err := c.Wipe(confirmation); err != nil {
		Fail(c, err)
	}

	fmt.Printf("wiped: %s\n", c.Path())
}
