package security

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

// CleanVirtual validates a path inside a vault namespace and returns its
// normalized absolute form. The namespace always uses forward slashes and
// is rooted at "/". Relative input is interpreted from the root.
//
// Traversal segments are rejected before normalization so "/a/../b" is an
// error rather than "/b".
func CleanVirtual(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL byte", ErrInvalidPath)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathEscapes, p)
		}
	}
	return path.Clean("/" + p), nil
}

// SplitVirtual returns the parent directory and base name of a clean
// virtual path. The root has no parent.
func SplitVirtual(clean string) (parent, name string) {
	if clean == "/" {
		return "", ""
	}
	return path.Dir(clean), path.Base(clean)
}
