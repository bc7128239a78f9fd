package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Exposure describes how a container file relates to a surrounding git
// repository
type Exposure struct {
	IsRepo  bool
	Path    string // container file name within its directory
	Tracked bool   // the container is committed or staged
	Ignored bool   // the container matches .gitignore
	Commits int    // commits in history that touched the container
}

// Exposed reports whether git holds or will pick up copies of the
// container
func (e *Exposure) Exposed() bool {
	return e.IsRepo && (e.Tracked || e.Commits > 0 || !e.Ignored)
}

// IsGitRepo checks if dir is inside a git work tree
func IsGitRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(dir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(dir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = dir
	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// historyCount counts commits that touched path, including deletions
func historyCount(dir, path string) int {
	cmd := exec.Command("git", "log", "--all", "--format=%H", "--", path)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return 0
	}
	out := strings.TrimSpace(string(output))
	if out == "" {
		return 0
	}
	return len(strings.Split(out, "\n"))
}

// CheckExposure inspects the repository around containerPath, if any
func CheckExposure(containerPath string) (*Exposure, error) {
	abs, err := filepath.Abs(containerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	dir, name := filepath.Split(abs)

	status := &Exposure{Path: name}
	if !IsGitRepo(dir) {
		return status, nil
	}
	status.IsRepo = true
	status.Tracked = IsTracked(dir, name)
	status.Ignored = IsIgnored(dir, name)
	status.Commits = historyCount(dir, name)
	return status, nil
}

// FormatExposure formats the exposure check for display
func FormatExposure(status *Exposure) string {
	if !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")

	if status.Tracked {
		fmt.Fprintf(&result, "   error: %s is tracked by git (run: git rm --cached %s)\n", status.Path, status.Path)
	}
	if status.Commits > 0 {
		fmt.Fprintf(&result, "   error: %d commit(s) in history contain %s\n", status.Commits, status.Path)
	}
	if !status.Ignored {
		fmt.Fprintf(&result, "   warning: %s not in .gitignore (add to .gitignore)\n", status.Path)
	}
	if !status.Exposed() {
		fmt.Fprintf(&result, "   ok: %s is ignored and has no history\n", status.Path)
	}
	return result.String()
}
