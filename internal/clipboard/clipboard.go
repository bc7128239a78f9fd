package clipboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("clipboard is not available on this system")

// Manager puts secrets on the system clipboard and clears them after a
// timeout. One timer is kept at a time.
type Manager struct {
	mu      sync.Mutex
	timer   *time.Timer
	cleared chan struct{}
	write   func(string) error
}

// NewManager creates a manager backed by the system clipboard
func NewManager() *Manager {
	return &Manager{write: clipboard.WriteAll}
}

// Available reports whether a clipboard utility was found
func Available() bool {
	return !clipboard.Unsupported
}

// Copy writes text to the clipboard and schedules clearing after timeout.
// A previous pending clear is replaced.
func (m *Manager) Copy(text string, timeout time.Duration) error {
	if !Available() {
		return ErrUnsupported
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stop()
	if err := m.write(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}

	cleared := make(chan struct{})
	var timer *time.Timer
	timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// stopped or replaced while waiting for the lock
		if m.timer != timer {
			return
		}
		_ = m.write("")
		m.timer = nil
		close(cleared)
	})
	m.timer = timer
	m.cleared = cleared
	return nil
}

// Cleared is closed once the pending copy has been cleared by its timer.
// It is nil when nothing was copied.
func (m *Manager) Cleared() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// ClearNow empties the clipboard and cancels the pending clear
func (m *Manager) ClearNow() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stop()
	if err := m.write(""); err != nil {
		return fmt.Errorf("failed to clear clipboard: %w", err)
	}
	return nil
}

// Close cancels the pending clear without touching the clipboard
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stop()
}

func (m *Manager) stop() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
