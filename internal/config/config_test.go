package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/lockout"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLOAK_HOME", dir)
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLOAK_HOME", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, cfg.Vault.File)
	assert.Equal(t, crypto.DefaultIters, cfg.Vault.Iterations)
	assert.Equal(t, lockout.DefaultMaxAttempts, cfg.Lockout.MaxAttempts)
	assert.Equal(t, lockout.DefaultDuration, cfg.Lockout.Duration.Duration)
	assert.Equal(t, filepath.Join(dir, "state.db"), cfg.Lockout.StateDB)
	assert.Equal(t, filepath.Join(dir, "lockout"), cfg.Lockout.FallbackDir)
}

func TestLoadTOML(t *testing.T) {
	writeConfig(t, `
[vault]
iterations = 600000
padding_min = 10
padding_max = 20
disguise = true
auto_lock = "10m"

[lockout]
max_attempts = 3
duration = "1h"
state_db = "/var/lib/cloak/state.db"

[stego]
bits_per_unit = 2

[forensics]
timestamp_window = "720h"
wipe_rate_limit = 1048576

[log]
level = "debug"
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 600000, cfg.Vault.Iterations)
	assert.Equal(t, 10, cfg.Vault.PaddingMin)
	assert.Equal(t, 20, cfg.Vault.PaddingMax)
	assert.True(t, cfg.Vault.Disguise)
	assert.Equal(t, 10*time.Minute, cfg.Vault.AutoLock.Duration)
	assert.Equal(t, 3, cfg.Lockout.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Lockout.Duration.Duration)
	assert.Equal(t, "/var/lib/cloak/state.db", cfg.Lockout.StateDB)
	assert.Equal(t, 2, cfg.Stego.BitsPerUnit)
	assert.Equal(t, 720*time.Hour, cfg.Forensics.TimestampWindow.Duration)
	assert.Equal(t, int64(1048576), cfg.Forensics.WipeRateLimit)
	assert.Equal(t, logrus.DebugLevel, cfg.NewLogger().GetLevel())
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, "[vault]\niterations = 600000\n")
	t.Setenv("CLOAK_ITERATIONS", "5000")
	t.Setenv("CLOAK_FILE", "/tmp/secret.bin")
	t.Setenv("CLOAK_LOCKOUT_DURATION", "2m")
	t.Setenv("CLOAK_LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Vault.Iterations)
	assert.Equal(t, "/tmp/secret.bin", cfg.Vault.File)
	assert.Equal(t, 2*time.Minute, cfg.Lockout.Duration.Duration)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestInvalidEnvOverride(t *testing.T) {
	t.Setenv("CLOAK_HOME", t.TempDir())
	t.Setenv("CLOAK_LOCKOUT_ATTEMPTS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLOAK_LOCKOUT_ATTEMPTS")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	writeConfig(t, `
[vault]
iterations = 10
padding_min = 50
padding_max = 5

[stego]
bits_per_unit = 7

[log]
level = "chatty"
`)

	_, err := Load()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{"vault.iterations", "vault.padding_min", "stego.bits_per_unit", "log.level"}, fields)
}

func TestUnknownKeysRejected(t *testing.T) {
	writeConfig(t, "[vault]\niteratoins = 5000\n")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault.iteratoins")
}

func TestBadDuration(t *testing.T) {
	writeConfig(t, "[lockout]\nduration = \"forever\"\n")

	_, err := Load()
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLOAK_HOME", dir)

	cfg := Default()
	cfg.Vault.Iterations = 300000
	cfg.Vault.AutoLock = Duration{5 * time.Minute}
	cfg.Lockout.MaxAttempts = 7
	require.NoError(t, cfg.SetDefaults())

	path := filepath.Join(dir, "nested", FileName)
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
