package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/antiforensics"
	"github.com/illarion/cloak/internal/container"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/lockout"
	"github.com/illarion/cloak/internal/stego"
	"github.com/illarion/cloak/internal/storage"
	"github.com/illarion/cloak/internal/vfs"
)

const (
	DefaultFile = ".cloak"
	FileName    = "config.toml"

	// MinIterations is the lowest PBKDF2 iteration count a config may set
	MinIterations = 1000
)

// Duration is a time.Duration written as a string such as "15m" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the on-disk configuration
type Config struct {
	Vault     VaultConfig     `toml:"vault"`
	Lockout   LockoutConfig   `toml:"lockout"`
	VFS       VFSConfig       `toml:"vfs"`
	Stego     StegoConfig     `toml:"stego"`
	Forensics ForensicsConfig `toml:"forensics"`
	Log       LogConfig       `toml:"log"`
}

type VaultConfig struct {
	File       string   `toml:"file"`
	Iterations int      `toml:"iterations"`
	PaddingMin int      `toml:"padding_min"`
	PaddingMax int      `toml:"padding_max"`
	Disguise   bool     `toml:"disguise"`
	AutoLock   Duration `toml:"auto_lock"`
	WipePasses int      `toml:"wipe_passes"`
}

type LockoutConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Duration    Duration `toml:"duration"`
	StateDB     string   `toml:"state_db"`
	FallbackDir string   `toml:"fallback_dir"`
}

type VFSConfig struct {
	MaxFindResults int `toml:"max_find_results"`
}

type StegoConfig struct {
	BitsPerUnit int `toml:"bits_per_unit"`
}

type ForensicsConfig struct {
	TimestampWindow Duration `toml:"timestamp_window"`
	// WipeRateLimit throttles free-space wiping in bytes per second, zero
	// means unthrottled
	WipeRateLimit int64 `toml:"wipe_rate_limit"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Dir returns the configuration directory, $CLOAK_HOME or ~/.cloak
func Dir() (string, error) {
	if dir := os.Getenv("CLOAK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".cloak"), nil
}

// Path returns the path of the TOML config file
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns the built-in configuration. State paths are left empty
// and filled from Dir by SetDefaults.
func Default() *Config {
	return &Config{
		Vault: VaultConfig{
			File:       DefaultFile,
			Iterations: crypto.DefaultIters,
			PaddingMin: container.DefaultPaddingMin,
			PaddingMax: container.DefaultPaddingMax,
			WipePasses: antiforensics.DefaultPasses,
		},
		Lockout: LockoutConfig{
			MaxAttempts: lockout.DefaultMaxAttempts,
			Duration:    Duration{lockout.DefaultDuration},
		},
		VFS:       VFSConfig{MaxFindResults: vfs.DefaultMaxFindResults},
		Stego:     StegoConfig{BitsPerUnit: stego.DefaultBitsPerUnit},
		Forensics: ForensicsConfig{TimestampWindow: Duration{antiforensics.DefaultTimestampWindow}},
		Log:       LogConfig{Level: "warn"},
	}
}

// Load reads the config file at Path when it exists, then applies
// environment overrides, defaults and validation
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromPath(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := cfg.finish(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFromPath reads a specific TOML file
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if err := c.ApplyEnvOverrides(); err != nil {
		return err
	}
	if err := c.SetDefaults(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the config as TOML
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return storage.WriteFileAtomic(path, buf.Bytes(), storage.FilePerm)
}

// ApplyEnvOverrides applies CLOAK_* environment variables:
//   - CLOAK_FILE: vault.file
//   - CLOAK_ITERATIONS: vault.iterations
//   - CLOAK_AUTO_LOCK: vault.auto_lock
//   - CLOAK_LOCKOUT_ATTEMPTS: lockout.max_attempts
//   - CLOAK_LOCKOUT_DURATION: lockout.duration
//   - CLOAK_STATE_DB: lockout.state_db
//   - CLOAK_STEGO_BITS: stego.bits_per_unit
//   - CLOAK_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("CLOAK_FILE"); v != "" {
		c.Vault.File = v
	}
	if v := os.Getenv("CLOAK_STATE_DB"); v != "" {
		c.Lockout.StateDB = v
	}
	if v := os.Getenv("CLOAK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"CLOAK_ITERATIONS", &c.Vault.Iterations},
		{"CLOAK_LOCKOUT_ATTEMPTS", &c.Lockout.MaxAttempts},
		{"CLOAK_STEGO_BITS", &c.Stego.BitsPerUnit},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.name, v, err)
		}
		*e.dst = n
	}

	durations := []struct {
		name string
		dst  *Duration
	}{
		{"CLOAK_AUTO_LOCK", &c.Vault.AutoLock},
		{"CLOAK_LOCKOUT_DURATION", &c.Lockout.Duration},
	}
	for _, e := range durations {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		if err := e.dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.name, v, err)
		}
	}
	return nil
}

// SetDefaults fills zero values and resolves state paths under Dir
func (c *Config) SetDefaults() error {
	d := Default()
	if c.Vault.File == "" {
		c.Vault.File = d.Vault.File
	}
	if c.Vault.Iterations == 0 {
		c.Vault.Iterations = d.Vault.Iterations
	}
	if c.Vault.PaddingMin == 0 && c.Vault.PaddingMax == 0 {
		c.Vault.PaddingMin, c.Vault.PaddingMax = d.Vault.PaddingMin, d.Vault.PaddingMax
	}
	if c.Vault.WipePasses == 0 {
		c.Vault.WipePasses = d.Vault.WipePasses
	}
	if c.Lockout.MaxAttempts == 0 {
		c.Lockout.MaxAttempts = d.Lockout.MaxAttempts
	}
	if c.Lockout.Duration.Duration == 0 {
		c.Lockout.Duration = d.Lockout.Duration
	}
	if c.VFS.MaxFindResults == 0 {
		c.VFS.MaxFindResults = d.VFS.MaxFindResults
	}
	if c.Stego.BitsPerUnit == 0 {
		c.Stego.BitsPerUnit = d.Stego.BitsPerUnit
	}
	if c.Forensics.TimestampWindow.Duration == 0 {
		c.Forensics.TimestampWindow = d.Forensics.TimestampWindow
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}

	if c.Lockout.StateDB == "" || c.Lockout.FallbackDir == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if c.Lockout.StateDB == "" {
			c.Lockout.StateDB = filepath.Join(dir, "state.db")
		}
		if c.Lockout.FallbackDir == "" {
			c.Lockout.FallbackDir = filepath.Join(dir, "lockout")
		}
	}
	return nil
}

// ValidationError is one invalid config field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Vault.Iterations < MinIterations {
		add("vault.iterations", "must be at least %d, got %d", MinIterations, c.Vault.Iterations)
	}
	if c.Vault.PaddingMin < 0 || c.Vault.PaddingMax < c.Vault.PaddingMin {
		add("vault.padding_min", "padding range %d..%d is invalid", c.Vault.PaddingMin, c.Vault.PaddingMax)
	}
	if c.Vault.PaddingMax > 1<<20 {
		add("vault.padding_max", "must not exceed %d", 1<<20)
	}
	if c.Vault.AutoLock.Duration < 0 {
		add("vault.auto_lock", "must not be negative")
	}
	if c.Vault.WipePasses < 1 || c.Vault.WipePasses > 35 {
		add("vault.wipe_passes", "must be between 1 and 35, got %d", c.Vault.WipePasses)
	}
	if c.Lockout.MaxAttempts < 1 {
		add("lockout.max_attempts", "must be at least 1, got %d", c.Lockout.MaxAttempts)
	}
	if c.Lockout.Duration.Duration < time.Second {
		add("lockout.duration", "must be at least 1s, got %s", c.Lockout.Duration)
	}
	if c.VFS.MaxFindResults < 1 {
		add("vfs.max_find_results", "must be at least 1, got %d", c.VFS.MaxFindResults)
	}
	if c.Stego.BitsPerUnit < 1 || c.Stego.BitsPerUnit > stego.MaxBitsPerUnit {
		add("stego.bits_per_unit", "must be between 1 and %d, got %d", stego.MaxBitsPerUnit, c.Stego.BitsPerUnit)
	}
	if c.Forensics.TimestampWindow.Duration <= 0 {
		add("forensics.timestamp_window", "must be positive")
	}
	if c.Forensics.WipeRateLimit < 0 {
		add("forensics.wipe_rate_limit", "must not be negative")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// NewLogger returns a logrus logger writing to stderr at the configured
// level
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}
