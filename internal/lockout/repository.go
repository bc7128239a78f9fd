package lockout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/storage"
)

// Record is the persisted lockout state of one container
type Record struct {
	FailedAttempts int   `json:"failed_attempts"`
	LockoutUntil   int64 `json:"lockout_until"` // epoch seconds, 0 when not locked
}

// Backend is one place a Record can be persisted.
// Load returns storage.ErrNotFound when no record exists.
type Backend interface {
	Load(id string) (Record, error)
	Save(id string, rec Record) error
	Delete(id string) error
}

// ContainerID derives the lockout key for a container path
func ContainerID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:]), nil
}

// BoltBackend stores records in the BBolt lockout bucket
type BoltBackend struct {
	store *storage.Storage
}

// NewBoltBackend wraps an open storage database
func NewBoltBackend(store *storage.Storage) *BoltBackend {
	return &BoltBackend{store: store}
}

func (b *BoltBackend) Load(id string) (Record, error) {
	var rec Record
	data, err := b.store.Get(storage.LockoutBucket, []byte(id))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode lockout record: %w", err)
	}
	return rec, nil
}

func (b *BoltBackend) Save(id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.store.Put(storage.LockoutBucket, []byte(id), data)
}

func (b *BoltBackend) Delete(id string) error {
	return b.store.Delete(storage.LockoutBucket, []byte(id))
}

// FileBackend stores one JSON file per container in a directory
type FileBackend struct {
	dir string
}

// NewFileBackend stores records under dir
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (f *FileBackend) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

func (f *FileBackend) Load(id string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return rec, storage.ErrNotFound
		}
		return rec, fmt.Errorf("failed to read lockout file: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode lockout file: %w", err)
	}
	return rec, nil
}

func (f *FileBackend) Save(id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(f.path(id), data, storage.FilePerm)
}

func (f *FileBackend) Delete(id string) error {
	if err := os.Remove(f.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lockout file: %w", err)
	}
	return nil
}

// Repository keeps a record in a primary and a fallback backend.
// Reads reconcile the two with the primary winning on disagreement,
// and the losing copy is rewritten.
type Repository struct {
	primary  Backend
	fallback Backend
	logger   *logrus.Logger
}

// NewRepository creates a repository. A nil logger discards output.
func NewRepository(primary, fallback Backend, logger *logrus.Logger) *Repository {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Repository{primary: primary, fallback: fallback, logger: logger}
}

// Load returns the reconciled record for id. A missing record in both
// stores yields the zero Record. If neither store can be read the error
// is returned so callers can fail closed.
func (r *Repository) Load(id string) (Record, error) {
	p, perr := r.primary.Load(id)
	f, ferr := r.fallback.Load(id)

	pFound := perr == nil
	fFound := ferr == nil

	switch {
	case pFound:
		if !fFound || f != p {
			r.heal(r.fallback, "fallback", id, p)
		}
		return p, nil
	case fFound:
		if errors.Is(perr, storage.ErrNotFound) {
			r.heal(r.primary, "primary", id, f)
		} else {
			r.logger.WithFields(logrus.Fields{
				"event": "lockout_primary_unreadable",
				"error": perr,
			}).Warn("Using fallback lockout record")
		}
		return f, nil
	case errors.Is(perr, storage.ErrNotFound) && errors.Is(ferr, storage.ErrNotFound):
		return Record{}, nil
	default:
		return Record{}, fmt.Errorf("failed to load lockout state: %w", errors.Join(perr, ferr))
	}
}

func (r *Repository) heal(b Backend, name, id string, rec Record) {
	if err := b.Save(id, rec); err != nil {
		r.logger.WithFields(logrus.Fields{
			"event":   "lockout_heal_failed",
			"backend": name,
			"error":   err,
		}).Warn("Failed to reconcile lockout record")
	}
}

// Save writes rec to both backends. It fails only if both writes fail.
func (r *Repository) Save(id string, rec Record) error {
	perr := r.primary.Save(id, rec)
	ferr := r.fallback.Save(id, rec)

	if perr != nil && ferr != nil {
		return fmt.Errorf("failed to persist lockout state: %w", errors.Join(perr, ferr))
	}
	if perr != nil {
		r.logger.WithFields(logrus.Fields{"event": "lockout_primary_write_failed", "error": perr}).Warn("Lockout state written to fallback only")
	}
	if ferr != nil {
		r.logger.WithFields(logrus.Fields{"event": "lockout_fallback_write_failed", "error": ferr}).Warn("Lockout state written to primary only")
	}
	return nil
}

// Delete removes the record for id from both backends. Both are always
// attempted; a record left in either one would be healed back on Load.
func (r *Repository) Delete(id string) error {
	perr := r.primary.Delete(id)
	ferr := r.fallback.Delete(id)
	if err := errors.Join(perr, ferr); err != nil {
		return fmt.Errorf("failed to delete lockout state: %w", err)
	}
	return nil
}
