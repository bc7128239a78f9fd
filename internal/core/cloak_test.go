package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illarion/cloak/internal/config"
	"github.com/illarion/cloak/internal/lockout"
	"github.com/illarion/cloak/internal/vault"
	"github.com/illarion/cloak/internal/vfs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLOAK_HOME", filepath.Join(dir, "home"))

	cfg := config.Default()
	cfg.Vault.File = filepath.Join(dir, "vault.bin")
	cfg.Vault.Iterations = 1000
	cfg.Vault.WipePasses = 1
	cfg.Lockout.MaxAttempts = 2
	cfg.Lockout.Duration = config.Duration{Duration: time.Hour}
	if err := cfg.SetDefaults(); err != nil {
		t.Fatalf("Failed to set defaults: %v", err)
	}
	return cfg
}

func newCloak(t *testing.T, cfg *config.Config) *Cloak {
	t.Helper()
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create cloak: %v", err)
	}
	return c
}

func TestInitOpenCommit(t *testing.T) {
	cfg := testConfig(t)

	c := newCloak(t, cfg)
	if _, err := c.Open([]byte("pw")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized, got %v", err)
	}
	if err := c.Init([]byte("main secret"), []byte("decoy secret")); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	kind, err := c.Open([]byte("main secret"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if kind != vault.MainVault {
		t.Fatalf("Expected main vault, got %s", kind)
	}

	fsys, err := c.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}
	if err := fsys.Mkdir("/docs", false); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fsys.WriteFile("/docs/plan.txt", []byte("the real plan")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	c = newCloak(t, cfg)
	defer c.Close()
	if _, err := c.FS(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Expected ErrNotOpen before Open, got %v", err)
	}
	if _, err := c.Open([]byte("main secret")); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	fsys, _ = c.FS()
	data, err := fsys.ReadFile("/docs/plan.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "the real plan" {
		t.Errorf("Expected saved content, got %q", data)
	}
}

func TestDecoyOpensSeparateTree(t *testing.T) {
	cfg := testConfig(t)
	c := newCloak(t, cfg)
	defer c.Close()

	if err := c.Init([]byte("main secret"), []byte("decoy secret")); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	kind, err := c.Open([]byte("decoy secret"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if kind != vault.DecoyVault {
		t.Fatalf("Expected decoy vault, got %s", kind)
	}
	fsys, _ := c.FS()
	entries, err := fsys.ListDir("/")
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("Decoy tree should hold plausible files")
	}

	if err := c.ChangePassword([]byte("decoy secret"), []byte("other")); !errors.Is(err, vault.ErrDecoyPasswordChange) {
		t.Errorf("Expected ErrDecoyPasswordChange, got %v", err)
	}
}

func TestStatusReportsLockout(t *testing.T) {
	cfg := testConfig(t)
	c := newCloak(t, cfg)
	defer c.Close()

	if _, err := c.Status(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized, got %v", err)
	}
	if err := c.Init([]byte("right"), nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for i := 0; i < cfg.Lockout.MaxAttempts; i++ {
		if _, err := c.Open([]byte("wrong")); !errors.Is(err, vault.ErrInvalidCredentials) {
			t.Fatalf("Attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	st, err := c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.FailedAttempts != 2 || !st.LockedUntil.After(time.Now()) {
		t.Errorf("Expected active lockout, got %+v", st)
	}
	if st.Info.Disguised {
		t.Error("Container without decoy should use the plain magic")
	}

	_, err = c.Open([]byte("right"))
	var locked *lockout.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("Expected LockedError, got %v", err)
	}
}

func TestImportExport(t *testing.T) {
	cfg := testConfig(t)
	c := newCloak(t, cfg)
	defer c.Close()

	if err := c.Init([]byte("pw"), nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := c.Open([]byte("pw")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	src := filepath.Join(t.TempDir(), "project")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatalf("Failed to create source tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("beta"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	stats, err := c.Import(context.Background(), src, "/project", vfs.ConflictOverwrite)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if stats.Files != 2 {
		t.Errorf("Expected 2 files imported, got %d", stats.Files)
	}

	dst := filepath.Join(t.TempDir(), "out")
	if _, err := c.Export(context.Background(), "/project", dst); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	if err != nil {
		t.Fatalf("Failed to read exported file: %v", err)
	}
	if string(got) != "beta" {
		t.Errorf("Expected beta, got %q", got)
	}
}

func TestHideContainer(t *testing.T) {
	cfg := testConfig(t)
	c := newCloak(t, cfg)
	defer c.Close()

	if err := c.Init([]byte("pw"), nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode carrier: %v", err)
	}
	dir := t.TempDir()
	carrier := filepath.Join(dir, "photo.png")
	out := filepath.Join(dir, "holiday.png")
	if err := os.WriteFile(carrier, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write carrier: %v", err)
	}

	if err := c.HideContainer(carrier, out, false); err != nil {
		t.Fatalf("HideContainer failed: %v", err)
	}

	codec, err := c.Codec(false)
	if err != nil {
		t.Fatalf("Codec failed: %v", err)
	}
	got, err := codec.ExtractFile(out)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	want, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatalf("Failed to read container: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("Extracted payload does not match the container")
	}
}

func TestWipe(t *testing.T) {
	cfg := testConfig(t)
	c := newCloak(t, cfg)
	defer c.Close()

	if err := c.Init([]byte("pw"), nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := c.Open([]byte("pw")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := c.Wipe("yes"); !errors.Is(err, vault.ErrWipeNotConfirmed) {
		t.Fatalf("Expected ErrWipeNotConfirmed, got %v", err)
	}
	if err := c.Wipe(vault.WipeConfirmation); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}
	if _, err := os.Stat(c.Path()); !os.IsNotExist(err) {
		t.Errorf("Container should be gone, stat returned %v", err)
	}
	if _, err := c.FS(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen after wipe, got %v", err)
	}
}

func TestWipeForgetsLockoutRecord(t *testing.T) {
	cfg := testConfig(t)
	c := newCloak(t, cfg)
	defer c.Close()

	if err := c.Init([]byte("pw"), nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := c.guard.RecordFailure(c.ID()); err != nil {
		t.Fatalf("Failed to record failure: %v", err)
	}
	fallback := filepath.Join(cfg.Lockout.FallbackDir, c.ID()+".json")
	if _, err := os.Stat(fallback); err != nil {
		t.Fatalf("Expected fallback lockout file: %v", err)
	}

	if err := c.Wipe(vault.WipeConfirmation); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}
	if _, err := os.Stat(fallback); !os.IsNotExist(err) {
		t.Errorf("Fallback lockout file should be removed, stat returned %v", err)
	}
	rec, err := c.guard.Status(c.ID())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if rec != (lockout.Record{}) {
		t.Errorf("Expected no lockout record after wipe, got %+v", rec)
	}
}
