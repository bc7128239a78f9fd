package lockout

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 5
	DefaultDuration    = 15 * time.Minute
)

var ErrLockedOut = errors.New("too many failed unlock attempts")

// LockedError reports an active lockout window
type LockedError struct {
	Until    time.Time
	Attempts int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: locked until %s", ErrLockedOut, e.Until.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error {
	return ErrLockedOut
}

// Remaining returns the time left in the window relative to now
func (e *LockedError) Remaining(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Guard enforces the failed-attempt policy on top of a Repository
type Guard struct {
	repo        *Repository
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
	logger      *logrus.Logger
}

// Option configures a Guard
type Option func(*Guard)

// WithMaxAttempts sets the number of failures that triggers a lockout
func WithMaxAttempts(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithDuration sets the lockout window length
func WithDuration(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.duration = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger for lockout events
func WithLogger(logger *logrus.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a guard with default policy unless overridden
func NewGuard(repo *Repository, opts ...Option) *Guard {
	g := &Guard{
		repo:        repo,
		maxAttempts: DefaultMaxAttempts,
		duration:    DefaultDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logrus.New()
		g.logger.SetOutput(io.Discard)
	}
	return g
}

// Status returns the current record for id
func (g *Guard) Status(id string) (Record, error) {
	return g.repo.Load(id)
}

// Check returns a *LockedError while a lockout window is active for id.
// It never touches key material, so it is safe to call before any derivation.
func (g *Guard) Check(id string) error {
	rec, err := g.repo.Load(id)
	if err != nil {
		return err
	}
	if rec.LockoutUntil == 0 {
		return nil
	}
	until := time.Unix(rec.LockoutUntil, 0)
	if g.now().Before(until) {
		g.logger.WithFields(logrus.Fields{
			"event":           "unlock_blocked",
			"lockout_until":   until,
			"failed_attempts": rec.FailedAttempts,
		}).Warn("Unlock blocked by active lockout")
		return &LockedError{Until: until, Attempts: rec.FailedAttempts}
	}
	return nil
}

// RecordFailure increments the failure counter and starts a lockout
// window once the threshold is reached. The record is persisted before
// returning.
func (g *Guard) RecordFailure(id string) (Record, error) {
	rec, err := g.repo.Load(id)
	if err != nil {
		return rec, err
	}

	now := g.now()
	if rec.LockoutUntil != 0 && !now.Before(time.Unix(rec.LockoutUntil, 0)) {
		// previous window elapsed, start a new series
		rec = Record{}
	}

	rec.FailedAttempts++
	if rec.FailedAttempts >= g.maxAttempts {
		rec.LockoutUntil = now.Add(g.duration).Unix()
	}

	if err := g.repo.Save(id, rec); err != nil {
		return rec, err
	}

	fields := logrus.Fields{
		"event":           "unlock_failed",
		"failed_attempts": rec.FailedAttempts,
	}
	if rec.LockoutUntil != 0 {
		fields["lockout_until"] = time.Unix(rec.LockoutUntil, 0)
		g.logger.WithFields(fields).Error("Lockout activated after repeated failures")
	} else {
		g.logger.WithFields(fields).Warn("Unlock failed")
	}
	return rec, nil
}

// Reset forgets the lockout record for id
func (g *Guard) Reset(id string) error {
	rec, err := g.repo.Load(id)
	if err == nil && rec == (Record{}) {
		return nil
	}
	return g.repo.Delete(id)
}
