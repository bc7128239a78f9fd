package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptWithAAD(t *testing.T) {
	key, err := GenerateRandom(KeySize)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	defer enc.Destroy()

	plaintext := []byte("secret content")
	ct, err := enc.Encrypt(plaintext, []byte("file:/a"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if len(ct) != NonceSize+len(plaintext)+TagSize {
		t.Errorf("Unexpected ciphertext length %d", len(ct))
	}

	got, err := enc.Decrypt(ct, []byte("file:/a"))
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Expected %q, got %q", plaintext, got)
	}

	if _, err := enc.Decrypt(ct, []byte("file:/b")); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed for wrong AAD, got %v", err)
	}

	ct[len(ct)-1] ^= 0x01
	if _, err := enc.Decrypt(ct, []byte("file:/a")); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed for modified ciphertext, got %v", err)
	}

	if _, err := enc.Decrypt(ct[:NonceSize], nil); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	kdf := &KDF{Salt: bytes.Repeat([]byte{7}, SaltSize), Iterations: 1000}

	k1 := kdf.DeriveKey([]byte("password"))
	k2 := kdf.DeriveKey([]byte("password"))
	k3 := kdf.DeriveKey([]byte("Password"))

	if !bytes.Equal(k1, k2) {
		t.Error("Same password and salt should derive the same key")
	}
	if bytes.Equal(k1, k3) {
		t.Error("Different passwords should derive different keys")
	}
	if len(k1) != KeySize {
		t.Errorf("Expected key size %d, got %d", KeySize, len(k1))
	}
}

func TestKeyGuardSubkeysAndTag(t *testing.T) {
	key, _ := GenerateRandom(KeySize)
	guard, err := NewKeyGuard(key)
	if err != nil {
		t.Fatalf("Failed to create key guard: %v", err)
	}

	mac, err := guard.Subkey(LabelHeaderMAC)
	if err != nil {
		t.Fatalf("Failed to derive subkey: %v", err)
	}
	data, err := guard.Subkey(LabelData)
	if err != nil {
		t.Fatalf("Failed to derive subkey: %v", err)
	}
	if bytes.Equal(mac, data) {
		t.Error("Subkeys for different labels must differ")
	}

	header := []byte("header bytes")
	tag, err := guard.HeaderTag(header)
	if err != nil {
		t.Fatalf("Failed to compute tag: %v", err)
	}
	if len(tag) != MACSize {
		t.Errorf("Expected tag size %d, got %d", MACSize, len(tag))
	}
	if !guard.VerifyHeaderTag(header, tag) {
		t.Error("Tag should verify")
	}
	if guard.VerifyHeaderTag([]byte("header bytez"), tag) {
		t.Error("Tag should not verify for a modified header")
	}

	guard.Destroy()
	if guard.Alive() {
		t.Error("Guard should not be alive after Destroy")
	}
	if _, err := guard.Subkey(LabelData); !errors.Is(err, ErrKeyDestroyed) {
		t.Errorf("Expected ErrKeyDestroyed, got %v", err)
	}
}

func TestNewKeyGuardRejectsShortKey(t *testing.T) {
	if _, err := NewKeyGuard([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}
