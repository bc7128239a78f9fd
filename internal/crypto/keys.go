package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

// Subkey labels. Each master key is split into independent keys so the
// header MAC key is never used for encryption.
const (
	LabelHeaderMAC = "cloak/header-mac/v1"
	LabelPayload   = "cloak/payload/v1"
	LabelData      = "cloak/data/v1"
)

var ErrKeyDestroyed = errors.New("key material destroyed")

// KeyGuard owns a master key held in locked, guarded memory.
// The key never leaves the guard except as short-lived derived subkeys.
type KeyGuard struct {
	buf *memguard.LockedBuffer
}

// NewKeyGuard moves key into guarded memory. The source slice is wiped.
func NewKeyGuard(key []byte) (*KeyGuard, error) {
	if len(key) != KeySize {
		ClearBytes(key)
		return nil, ErrInvalidKey
	}
	return &KeyGuard{buf: memguard.NewBufferFromBytes(key)}, nil
}

// Alive reports whether the guard still holds key material
func (g *KeyGuard) Alive() bool {
	return g != nil && g.buf != nil && g.buf.IsAlive()
}

// Subkey derives a KeySize subkey bound to label using HKDF-SHA256.
// The caller must ClearBytes the result.
func (g *KeyGuard) Subkey(label string) ([]byte, error) {
	if !g.Alive() {
		return nil, ErrKeyDestroyed
	}
	stream := hkdf.New(sha256.New, g.buf.Bytes(), nil, []byte(label))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(stream, key); err != nil {
		ClearBytes(key)
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return key, nil
}

// WithEncryptor runs fn with an encryptor keyed by the label subkey
// and wipes the subkey afterwards.
func (g *KeyGuard) WithEncryptor(label string, fn func(*Encryptor) error) error {
	key, err := g.Subkey(label)
	if err != nil {
		return err
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		ClearBytes(key)
		return err
	}
	defer enc.Destroy()
	return fn(enc)
}

// HeaderTag computes the header authentication tag for header
func (g *KeyGuard) HeaderTag(header []byte) ([]byte, error) {
	key, err := g.Subkey(LabelHeaderMAC)
	if err != nil {
		return nil, err
	}
	defer ClearBytes(key)

	mac := hmac.New(sha256.New, key)
	mac.Write(header)
	return mac.Sum(nil), nil
}

// VerifyHeaderTag checks tag against header in constant time
func (g *KeyGuard) VerifyHeaderTag(header, tag []byte) bool {
	expected, err := g.HeaderTag(header)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, tag)
}

// Destroy wipes and releases the guarded key
func (g *KeyGuard) Destroy() {
	if g == nil || g.buf == nil {
		return
	}
	g.buf.Destroy()
	g.buf = nil
}
