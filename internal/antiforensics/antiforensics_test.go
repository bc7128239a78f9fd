package antiforensics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSecureDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("sensitive ", 10000)), 0600))

	require.NoError(t, SecureDelete(path, 3))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "file should be gone")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "renamed file should not linger")
}

func TestSecureDeleteEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	require.NoError(t, SecureDelete(path, 1))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestSecureDeleteRejectsDirectory(t *testing.T) {
	err := SecureDelete(t.TempDir(), 1)
	require.ErrorIs(t, err, ErrIsDirectory)
}

func TestSecureDeleteMissing(t *testing.T) {
	err := SecureDelete(filepath.Join(t.TempDir(), "nope"), 1)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOverwritePasses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	original := []byte(strings.Repeat("A", 100))
	require.NoError(t, os.WriteFile(path, original, 0600))

	// Two passes leave the 0xFF pattern in place
	require.NoError(t, overwrite(path, int64(len(original)), 2))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, len(original))
	for _, b := range data {
		require.Equal(t, byte(0xFF), b)
	}
}

func TestSecureDeleteDir(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("1"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "deep.txt"), []byte("2"), 0600))

	require.NoError(t, SecureDeleteDir(root, 2))
	_, err := os.Stat(root)
	require.True(t, os.IsNotExist(err))
}

func TestRandomizeTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	window := 30 * 24 * time.Hour
	chosen, err := RandomizeTimestamps(path, window)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(chosen))
	require.False(t, chosen.After(time.Now()))
	require.True(t, chosen.After(time.Now().Add(-window-time.Minute)))
}

func TestBlendWithSystem(t *testing.T) {
	ref := t.TempDir()
	base := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		p := filepath.Join(ref, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0600))
		require.NoError(t, SetTimestamps(p, base.Add(time.Duration(i)*24*time.Hour)))
	}

	target := filepath.Join(t.TempDir(), "target")
	require.NoError(t, os.WriteFile(target, []byte("t"), 0600))

	chosen, err := BlendWithSystem(target, ref)
	require.NoError(t, err)

	median := base.Add(24 * time.Hour)
	require.False(t, chosen.After(median))
	require.True(t, chosen.After(median.Add(-time.Hour-time.Second)))

	_, err = BlendWithSystem(target, t.TempDir())
	require.ErrorIs(t, err, ErrNoReference)
}

func TestCreateTimelineGap(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 3; i++ {
		p := filepath.Join(dir, string(rune('a'+i)))
		require.NoError(t, os.WriteFile(p, nil, 0600))
		require.NoError(t, SetTimestamps(p, base.Add(time.Duration(i)*time.Hour)))
		paths = append(paths, p)
	}

	gap, err := CreateTimelineGap(paths, 48*time.Hour, 72*time.Hour)
	require.NoError(t, err)
	require.GreaterOrEqual(t, gap, 48*time.Hour)
	require.LessOrEqual(t, gap, 72*time.Hour)

	for i, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		want := base.Add(time.Duration(i) * time.Hour).Add(-gap)
		require.True(t, info.ModTime().Equal(want), "relative order must be preserved")
	}

	_, err = CreateTimelineGap(paths, time.Hour, time.Minute)
	require.Error(t, err)
}

func TestGenerateDecoyFiles(t *testing.T) {
	dir := t.TempDir()
	paths, err := GenerateDecoyFiles(dir, 5, 10, 100)
	require.NoError(t, err)
	require.Len(t, paths, 5)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.GreaterOrEqual(t, info.Size(), int64(10))
		require.LessOrEqual(t, info.Size(), int64(100))
		require.True(t, info.ModTime().Before(time.Now().Add(time.Second)))
	}

	_, err = GenerateDecoyFiles(dir, 1, 10, 5)
	require.Error(t, err)
}

func TestWipeFreeSpaceWithBudget(t *testing.T) {
	dir := t.TempDir()
	stats, err := WipeFreeSpace(context.Background(), dir, WipeOptions{
		MaxBytes: 300 * 1024,
		FileSize: 128 * 1024,
		Limiter:  rate.NewLimiter(rate.Inf, 16*1024),
	})
	require.NoError(t, err)
	require.Equal(t, int64(300*1024), stats.BytesWritten)
	require.Equal(t, 3, stats.Files)
	require.False(t, stats.DiskFull)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "filler files must be removed")
}

func TestWipeFreeSpaceCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WipeFreeSpace(ctx, dir, WipeOptions{MaxBytes: 1 << 20})
	require.True(t, errors.Is(err, context.Canceled))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func fakeProbe(t *testing.T) (probe, string, string) {
	t.Helper()
	root := t.TempDir()
	proc := filepath.Join(root, "proc")
	sys := filepath.Join(root, "sys")
	require.NoError(t, os.MkdirAll(filepath.Join(proc, "self"), 0700))
	require.NoError(t, os.MkdirAll(filepath.Join(sys, "class", "dmi", "id"), 0700))
	return probe{
		procRoot: proc,
		sysRoot:  sys,
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
		release:  func() string { return "6.1.0-generic" },
	}, proc, sys
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestProbeDebugger(t *testing.T) {
	p, proc, _ := fakeProbe(t)

	writeFile(t, filepath.Join(proc, "self", "status"), "Name:\tcloak\nPPid:\t10\nTracerPid:\t0\n")
	writeFile(t, filepath.Join(proc, "10", "comm"), "bash\n")
	require.False(t, p.debugger().Detected)

	writeFile(t, filepath.Join(proc, "self", "status"), "Name:\tcloak\nPPid:\t10\nTracerPid:\t42\n")
	writeFile(t, filepath.Join(proc, "42", "comm"), "gdb\n")
	f := p.debugger()
	require.True(t, f.Detected)
	require.Contains(t, f.Indicators, "traced by pid 42")
	require.Contains(t, f.Indicators, "tracer: gdb")
}

func TestProbeVM(t *testing.T) {
	p, proc, sys := fakeProbe(t)
	writeFile(t, filepath.Join(proc, "cpuinfo"), "processor\t: 0\nflags\t\t: fpu vme de\n")
	writeFile(t, filepath.Join(sys, "class", "dmi", "id", "sys_vendor"), "Dell Inc.\n")
	require.False(t, p.vm().Detected)

	writeFile(t, filepath.Join(proc, "cpuinfo"), "processor\t: 0\nflags\t\t: fpu vme hypervisor\n")
	writeFile(t, filepath.Join(sys, "class", "dmi", "id", "product_name"), "VirtualBox\n")
	f := p.vm()
	require.True(t, f.Detected)
	require.Len(t, f.Indicators, 2)
}

func TestProbeForensicTools(t *testing.T) {
	p, proc, _ := fakeProbe(t)
	writeFile(t, filepath.Join(proc, "100", "comm"), "bash\n")
	require.False(t, p.forensicTools().Detected)

	writeFile(t, filepath.Join(proc, "200", "comm"), "tcpdump\n")
	p.lookPath = func(name string) (string, error) {
		if name == "volatility" {
			return "/usr/bin/volatility", nil
		}
		return "", errors.New("not found")
	}
	f := p.forensicTools()
	require.True(t, f.Detected)
	require.Contains(t, f.Indicators, "running: tcpdump (pid 200)")
	require.Contains(t, f.Indicators, "installed: /usr/bin/volatility")
}
