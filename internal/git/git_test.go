package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func newRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	gitRun(t, dir, "init", "-q")
	return dir
}

func TestNotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	status, err := CheckExposure(filepath.Join(t.TempDir(), ".cloak"))
	if err != nil {
		t.Fatalf("CheckExposure failed: %v", err)
	}
	if status.IsRepo || status.Exposed() {
		t.Errorf("Expected no repo, got %+v", status)
	}
	if FormatExposure(status) != "" {
		t.Error("Expected empty report outside a repository")
	}
}

func TestIgnoredContainer(t *testing.T) {
	dir := newRepo(t)
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(".cloak\n"), 0644); err != nil {
		t.Fatalf("Failed to write .gitignore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".cloak"), []byte("ciphertext"), 0600); err != nil {
		t.Fatalf("Failed to write container: %v", err)
	}

	status, err := CheckExposure(filepath.Join(dir, ".cloak"))
	if err != nil {
		t.Fatalf("CheckExposure failed: %v", err)
	}
	if !status.IsRepo || !status.Ignored || status.Tracked {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.Exposed() {
		t.Error("Ignored container without history should not be exposed")
	}
	if !strings.Contains(FormatExposure(status), "ok:") {
		t.Errorf("Expected ok line, got %q", FormatExposure(status))
	}
}

func TestCommittedContainer(t *testing.T) {
	dir := newRepo(t)
	path := filepath.Join(dir, "vault.bin")
	if err := os.WriteFile(path, []byte("ciphertext"), 0600); err != nil {
		t.Fatalf("Failed to write container: %v", err)
	}
	gitRun(t, dir, "add", "vault.bin")
	gitRun(t, dir, "commit", "-q", "-m", "oops")

	status, err := CheckExposure(path)
	if err != nil {
		t.Fatalf("CheckExposure failed: %v", err)
	}
	if !status.Tracked || status.Commits != 1 || !status.Exposed() {
		t.Errorf("Unexpected status: %+v", status)
	}

	report := FormatExposure(status)
	if !strings.Contains(report, "git rm --cached vault.bin") {
		t.Errorf("Expected remediation hint, got %q", report)
	}
}
