package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/illarion/cloak/internal/antiforensics"
	"github.com/illarion/cloak/internal/config"
	"github.com/illarion/cloak/internal/hostfs"
	"github.com/illarion/cloak/internal/lockout"
	"github.com/illarion/cloak/internal/stego"
	"github.com/illarion/cloak/internal/storage"
	"github.com/illarion/cloak/internal/vault"
	"github.com/illarion/cloak/internal/vfs"
)

var (
	ErrNotInitialized = errors.New("container not initialized")
	ErrNotOpen        = errors.New("container is not open")
)

// Cloak wires one container to its lockout state, file system and tools
type Cloak struct {
	cfg    *config.Config
	logger *logrus.Logger

	store  *storage.Storage
	guard  *lockout.Guard
	engine *vault.Engine
	fs     *vfs.FileSystem
}

// New opens the lockout store and prepares an engine for the configured
// container. Nothing is read from the container yet.
func New(cfg *config.Config, logger *logrus.Logger) (*Cloak, error) {
	if logger == nil {
		logger = cfg.NewLogger()
	}

	store, err := storage.Open(cfg.Lockout.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open lockout state: %w", err)
	}
	repo := lockout.NewRepository(
		lockout.NewBoltBackend(store),
		lockout.NewFileBackend(cfg.Lockout.FallbackDir),
		logger,
	)
	guard := lockout.NewGuard(repo,
		lockout.WithMaxAttempts(cfg.Lockout.MaxAttempts),
		lockout.WithDuration(cfg.Lockout.Duration.Duration),
		lockout.WithLogger(logger),
	)

	engine, err := vault.New(cfg.Vault.File, vault.Options{
		Iterations:      cfg.Vault.Iterations,
		PaddingMin:      cfg.Vault.PaddingMin,
		PaddingMax:      cfg.Vault.PaddingMax,
		Disguise:        cfg.Vault.Disguise,
		AutoLockAfter:   cfg.Vault.AutoLock.Duration,
		TimestampWindow: cfg.Forensics.TimestampWindow.Duration,
		WipePasses:      cfg.Vault.WipePasses,
		Lockout:         guard,
		Logger:          logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Cloak{cfg: cfg, logger: logger, store: store, guard: guard, engine: engine}, nil
}

// Close unmounts the file system, locks the engine and closes the lockout
// store. Pending file system changes are saved first.
func (c *Cloak) Close() error {
	var errs []error
	if c.fs != nil {
		if err := c.fs.Unmount(); err != nil && !errors.Is(err, vfs.ErrNotMounted) {
			errs = append(errs, err)
		}
		c.fs = nil
	}
	c.engine.Lock()
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Cloak) Engine() *vault.Engine { return c.engine }

func (c *Cloak) Config() *config.Config { return c.cfg }

// Path returns the absolute container path
func (c *Cloak) Path() string { return c.engine.Path() }

// ID returns the container ID used for lockout and keyring entries
func (c *Cloak) ID() string { return c.engine.ID() }

// Init creates the container. An empty decoy password creates it without
// a decoy.
func (c *Cloak) Init(password, decoyPassword []byte) error {
	return c.engine.Create(password, decoyPassword)
}

// Open unlocks the container and mounts its file system
func (c *Cloak) Open(password []byte) (vault.Kind, error) {
	if !c.engine.Exists() {
		return vault.AuthFailure, ErrNotInitialized
	}
	kind, err := c.engine.Unlock(password)
	if err != nil {
		return kind, err
	}
	fsys, err := vfs.Mount(c.engine, vfs.Options{
		MaxFindResults: c.cfg.VFS.MaxFindResults,
		Logger:         c.logger,
	})
	if err != nil {
		c.engine.Lock()
		return vault.AuthFailure, err
	}
	c.fs = fsys
	return kind, nil
}

// FS returns the mounted file system or ErrNotOpen
func (c *Cloak) FS() (*vfs.FileSystem, error) {
	if c.fs == nil || !c.engine.IsUnlocked() {
		return nil, ErrNotOpen
	}
	return c.fs, nil
}

// Commit saves pending file system changes into the container
func (c *Cloak) Commit() error {
	fsys, err := c.FS()
	if err != nil {
		return err
	}
	return fsys.Sync()
}

// Status is what can be learned without a password
type Status struct {
	Info           *vault.Info
	FailedAttempts int
	LockedUntil    time.Time
}

// Status reads the container header and the lockout record
func (c *Cloak) Status() (*Status, error) {
	info, err := c.engine.Info()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	rec, err := c.guard.Status(c.engine.ID())
	if err != nil {
		return nil, err
	}
	st := &Status{Info: info, FailedAttempts: rec.FailedAttempts}
	if rec.LockoutUntil > 0 {
		st.LockedUntil = time.Unix(rec.LockoutUntil, 0)
	}
	return st, nil
}

// ChangePassword re-keys an open main session. The file system is synced
// first so the new key covers the current index.
func (c *Cloak) ChangePassword(oldPassword, newPassword []byte) error {
	if err := c.Commit(); err != nil {
		return err
	}
	return c.engine.ChangePassword(oldPassword, newPassword)
}

// Wipe destroys the container and forgets its lockout record
func (c *Cloak) Wipe(confirmation string) error {
	if confirmation != vault.WipeConfirmation {
		return vault.ErrWipeNotConfirmed
	}
	c.fs = nil
	if err := c.engine.EmergencyWipe(confirmation); err != nil {
		return err
	}
	if err := c.guard.Reset(c.engine.ID()); err != nil {
		c.logger.WithFields(logrus.Fields{"event": "lockout_reset_failed", "error": err}).Warn("Failed to clear lockout record")
	}
	return nil
}

// Import copies a host file or directory into the file system at vpath
func (c *Cloak) Import(ctx context.Context, hostPath, vpath string, policy vfs.ConflictPolicy) (vfs.TreeStats, error) {
	fsys, err := c.FS()
	if err != nil {
		return vfs.TreeStats{}, err
	}
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return vfs.TreeStats{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	host, err := hostfs.New(filepath.Dir(abs))
	if err != nil {
		return vfs.TreeStats{}, err
	}
	defer host.Close()

	stats, err := fsys.ImportTree(ctx, host, "/"+filepath.Base(abs), vpath, policy)
	if err != nil {
		return stats, err
	}
	return stats, fsys.Sync()
}

// Export writes the file or directory at vpath into hostDir, creating it
// when needed
func (c *Cloak) Export(ctx context.Context, vpath, hostDir string) (vfs.TreeStats, error) {
	fsys, err := c.FS()
	if err != nil {
		return vfs.TreeStats{}, err
	}
	if err := os.MkdirAll(hostDir, storage.DirPerm); err != nil {
		return vfs.TreeStats{}, fmt.Errorf("failed to create %s: %w", hostDir, err)
	}
	host, err := hostfs.New(hostDir)
	if err != nil {
		return vfs.TreeStats{}, err
	}
	defer host.Close()
	return fsys.ExportTree(ctx, vpath, host, "/")
}

// Codec returns a steganography codec configured from the config
func (c *Cloak) Codec(trailer bool) (*stego.Codec, error) {
	return stego.New(stego.Options{
		BitsPerUnit: c.cfg.Stego.BitsPerUnit,
		Trailer:     trailer,
		Logger:      c.logger,
	})
}

// HideContainer embeds the container file itself into a carrier
func (c *Cloak) HideContainer(carrierPath, outPath string, trailer bool) error {
	data, err := os.ReadFile(c.engine.Path())
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotInitialized
	}
	if err != nil {
		return fmt.Errorf("failed to read container: %w", err)
	}
	codec, err := c.Codec(trailer)
	if err != nil {
		return err
	}
	return codec.HideFile(carrierPath, outPath, data)
}

// WipeFreeSpace runs the free-space wiper with the configured rate limit
// and pass count
func (c *Cloak) WipeFreeSpace(ctx context.Context, dir string, maxBytes int64) (antiforensics.WipeStats, error) {
	opts := antiforensics.WipeOptions{
		MaxBytes: maxBytes,
		Passes:   1,
		Logger:   c.logger,
	}
	if limit := c.cfg.Forensics.WipeRateLimit; limit > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(limit), int(min(limit, 1<<20)))
	}
	return antiforensics.WipeFreeSpace(ctx, dir, opts)
}
