package vault

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/illarion/cloak/internal/crypto"
)

var ErrInvalidName = errors.New("invalid file name")

// FileInfo describes a stored file without its content
type FileInfo struct {
	Name     string
	Size     int64
	Created  time.Time
	Modified time.Time
}

func fileAAD(name string) []byte {
	return []byte("file:" + name)
}

func encryptFile(key *crypto.KeyGuard, name string, plaintext []byte) ([]byte, error) {
	var ct []byte
	err := key.WithEncryptor(crypto.LabelData, func(enc *crypto.Encryptor) error {
		var err error
		ct, err = enc.Encrypt(plaintext, fileAAD(name))
		return err
	})
	return ct, err
}

func decryptFile(key *crypto.KeyGuard, name string, ct []byte) ([]byte, error) {
	var plaintext []byte
	err := key.WithEncryptor(crypto.LabelData, func(enc *crypto.Encryptor) error {
		var err error
		plaintext, err = enc.Decrypt(ct, fileAAD(name))
		return err
	})
	return plaintext, err
}

// AddFile stores content under name, replacing any existing file. The
// change is held in memory until Save.
func (e *Engine) AddFile(name string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return err
	}
	if name == "" {
		return ErrInvalidName
	}

	ct, err := encryptFile(e.key, name, content)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", name, err)
	}

	now := e.opts.Now()
	if existing, ok := e.data.Files[name]; ok {
		crypto.ClearBytes(existing.Ciphertext)
		existing.Ciphertext = ct
		existing.Size = int64(len(content))
		existing.Modified = now
		return nil
	}
	e.data.Files[name] = &FileEntry{
		Ciphertext: ct,
		Size:       int64(len(content)),
		Created:    now,
		Modified:   now,
	}
	return nil
}

// ExtractFile returns the decrypted content of name. The caller should
// crypto.ClearBytes the result when done.
func (e *Engine) ExtractFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return nil, err
	}
	entry, ok := e.data.Files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	plaintext, err := decryptFile(e.key, name, entry.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", name, err)
	}
	return plaintext, nil
}

// RemoveFile deletes name from the vault
func (e *Engine) RemoveFile(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return err
	}
	entry, ok := e.data.Files[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	crypto.ClearBytes(entry.Ciphertext)
	delete(e.data.Files, name)
	return nil
}

// HasFile reports whether name is stored
func (e *Engine) HasFile(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return false, err
	}
	_, ok := e.data.Files[name]
	return ok, nil
}

// ListFiles returns all stored files sorted by name
func (e *Engine) ListFiles() ([]FileInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(e.data.Files))
	for name, f := range e.data.Files {
		files = append(files, FileInfo{
			Name:     name,
			Size:     f.Size,
			Created:  f.Created,
			Modified: f.Modified,
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// Metadata returns a copy of the metadata value for key, or nil
func (e *Engine) Metadata(key string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return nil, err
	}
	v, ok := e.data.Metadata[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// SetMetadata stores a copy of value under key
func (e *Engine) SetMetadata(key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return err
	}
	if old, ok := e.data.Metadata[key]; ok {
		crypto.ClearBytes(old)
	}
	e.data.Metadata[key] = append([]byte(nil), value...)
	return nil
}

// DeleteMetadata removes key
func (e *Engine) DeleteMetadata(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return err
	}
	if old, ok := e.data.Metadata[key]; ok {
		crypto.ClearBytes(old)
		delete(e.data.Metadata, key)
	}
	return nil
}
