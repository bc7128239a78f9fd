package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illarion/cloak/internal/container"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/lockout"
	"github.com/illarion/cloak/internal/storage"
)

const testIterations = 1000

func newEngine(t *testing.T, path string, opts Options) *Engine {
	t.Helper()
	opts.Iterations = testIterations
	e, err := New(path, opts)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

func unlock(t *testing.T, e *Engine, password string) Kind {
	t.Helper()
	kind, err := e.Unlock([]byte(password))
	if err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	return kind
}

func TestCreateAndUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})

	if err := e.Create([]byte("secret"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	if e.IsUnlocked() {
		t.Error("Engine should stay locked after Create")
	}
	if err := e.Create([]byte("secret"), nil); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}

	if kind := unlock(t, e, "secret"); kind != MainVault {
		t.Errorf("Expected main vault, got %s", kind)
	}

	if err := e.AddFile("/a.txt", []byte("hello")); err != nil {
		t.Fatalf("Failed to add file: %v", err)
	}
	if err := e.SetMetadata("k", []byte("v")); err != nil {
		t.Fatalf("Failed to set metadata: %v", err)
	}
	if err := e.Save(); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	e.Lock()

	if _, err := e.ListFiles(); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got %v", err)
	}

	e2 := newEngine(t, path, Options{})
	unlock(t, e2, "secret")
	content, err := e2.ExtractFile("/a.txt")
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Expected 'hello', got %q", content)
	}
	v, err := e2.Metadata("k")
	if err != nil || string(v) != "v" {
		t.Errorf("Expected metadata 'v', got %q (%v)", v, err)
	}
}

func TestCreateRejectsBadPasswords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})

	if err := e.Create(nil, nil); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("Expected ErrEmptyPassword, got %v", err)
	}
	if err := e.Create([]byte("same"), []byte("same")); !errors.Is(err, ErrSamePassword) {
		t.Errorf("Expected ErrSamePassword, got %v", err)
	}
	if e.Exists() {
		t.Error("No container should be written on error")
	}
}

func TestUnlockMissingContainer(t *testing.T) {
	e := newEngine(t, filepath.Join(t.TempDir(), "missing"), Options{})
	if _, err := e.Unlock([]byte("x")); !errors.Is(err, ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestMainAndDecoyPasswords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})

	if err := e.Create([]byte("Tr0ub4dor&3"), []byte("temporary1")); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	if kind := unlock(t, e, "Tr0ub4dor&3"); kind != MainVault {
		t.Fatalf("Expected main vault, got %s", kind)
	}
	notes := []byte("meeting at 9, bring!")
	if len(notes) != 20 {
		t.Fatalf("test content should be 20 bytes, got %d", len(notes))
	}
	if err := e.AddFile("/notes.txt", notes); err != nil {
		t.Fatalf("Failed to add file: %v", err)
	}
	if err := e.Save(); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	e.Lock()

	if kind := unlock(t, e, "temporary1"); kind != DecoyVault {
		t.Fatalf("Expected decoy vault, got %s", kind)
	}
	has, err := e.HasFile("/notes.txt")
	if err != nil {
		t.Fatalf("Failed to check file: %v", err)
	}
	if has {
		t.Error("Decoy session must not see main files")
	}
	files, err := e.ListFiles()
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(files) == 0 {
		t.Error("Decoy payload should contain believable files")
	}
	e.Lock()

	kind, err := e.Unlock([]byte("wrong"))
	if kind != AuthFailure || !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected auth failure, got %s / %v", kind, err)
	}

	unlock(t, e, "Tr0ub4dor&3")
	got, err := e.ExtractFile("/notes.txt")
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}
	if !bytes.Equal(got, notes) {
		t.Errorf("Content mismatch: %q", got)
	}

	c, err := container.Read(path)
	if err != nil {
		t.Fatalf("Failed to read container: %v", err)
	}
	if !c.Header.Disguised() {
		t.Error("Container with a decoy should use the disguise magic")
	}
}

func TestDecoyIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})
	if err := e.Create([]byte("main"), []byte("decoy")); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	unlock(t, e, "decoy")
	if err := e.AddFile("/decoy-only.txt", []byte("d")); err != nil {
		t.Fatalf("Failed to add file: %v", err)
	}
	if err := e.Save(); err != nil {
		t.Fatalf("Failed to save decoy: %v", err)
	}
	e.Lock()

	unlock(t, e, "main")
	if has, _ := e.HasFile("/decoy-only.txt"); has {
		t.Error("Main session must not see decoy files")
	}
	if err := e.AddFile("/main-only.txt", []byte("m")); err != nil {
		t.Fatalf("Failed to add file: %v", err)
	}
	if err := e.Save(); err != nil {
		t.Fatalf("Failed to save main: %v", err)
	}
	e.Lock()

	unlock(t, e, "decoy")
	if has, _ := e.HasFile("/decoy-only.txt"); !has {
		t.Error("Decoy file should survive a main save")
	}
	if has, _ := e.HasFile("/main-only.txt"); has {
		t.Error("Decoy session must not see main files")
	}
}

func TestHeaderTamperDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{PaddingMin: 16, PaddingMax: 16})
	if err := e.Create([]byte("main"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read container: %v", err)
	}
	c, err := container.Parse(original)
	if err != nil {
		t.Fatalf("Failed to parse container: %v", err)
	}

	for i := 0; i < len(c.HeaderBytes)*8; i++ {
		tampered := append([]byte(nil), original...)
		tampered[i/8] ^= 1 << (i % 8)
		if err := os.WriteFile(path, tampered, 0600); err != nil {
			t.Fatalf("Failed to write tampered container: %v", err)
		}
		kind, err := e.Unlock([]byte("main"))
		if err == nil || kind != AuthFailure {
			t.Fatalf("Bit %d flip was not detected", i)
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Bit %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	if err := os.WriteFile(path, original, 0600); err != nil {
		t.Fatalf("Failed to restore container: %v", err)
	}
	unlock(t, e, "main")
}

func TestPayloadTamperDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})
	if err := e.Create([]byte("main"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	raw, _ := os.ReadFile(path)
	raw[len(raw)-1] ^= 0x01
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if _, err := e.Unlock([]byte("main")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func openGuard(t *testing.T, dir string) (*lockout.Guard, *storage.Storage) {
	t.Helper()
	store, err := storage.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	repo := lockout.NewRepository(
		lockout.NewBoltBackend(store),
		lockout.NewFileBackend(filepath.Join(dir, "lockout")),
		nil,
	)
	return lockout.NewGuard(repo, lockout.WithMaxAttempts(3), lockout.WithDuration(time.Hour)), store
}

func TestLockoutPersistsAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.bin")
	stateDir := filepath.Join(dir, "state")

	guard, store := openGuard(t, stateDir)
	e := newEngine(t, path, Options{Lockout: guard})
	if err := e.Create([]byte("right"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := e.Unlock([]byte("wrong")); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := e.Unlock([]byte("right")); !errors.Is(err, lockout.ErrLockedOut) {
		t.Fatalf("Expected ErrLockedOut, got %v", err)
	}
	store.Close()

	// A fresh process sees the same lockout
	guard2, store2 := openGuard(t, stateDir)
	defer store2.Close()
	e2 := newEngine(t, path, Options{Lockout: guard2})
	_, err := e2.Unlock([]byte("right"))
	var locked *lockout.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("Expected LockedError after restart, got %v", err)
	}
	if locked.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", locked.Attempts)
	}
}

func TestSuccessfulUnlockResetsLockout(t *testing.T) {
	dir := t.TempDir()
	guard, store := openGuard(t, filepath.Join(dir, "state"))
	defer store.Close()

	e := newEngine(t, filepath.Join(dir, "vault.bin"), Options{Lockout: guard})
	if err := e.Create([]byte("right"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	_, _ = e.Unlock([]byte("wrong"))
	_, _ = e.Unlock([]byte("wrong"))
	unlock(t, e, "right")

	rec, err := guard.Status(e.ID())
	if err != nil {
		t.Fatalf("Failed to read status: %v", err)
	}
	if rec.FailedAttempts != 0 {
		t.Errorf("Expected counter reset, got %d", rec.FailedAttempts)
	}
}

func writeV1(t *testing.T, path string, password string) {
	t.Helper()
	kdf, err := crypto.NewKDF(testIterations)
	if err != nil {
		t.Fatalf("Failed to create KDF: %v", err)
	}
	key, err := crypto.NewKeyGuard(kdf.DeriveKey([]byte(password)))
	if err != nil {
		t.Fatalf("Failed to guard key: %v", err)
	}
	defer key.Destroy()

	c := &container.Container{Header: container.Header{
		Magic:     container.MagicVault,
		Version:   container.Version1,
		Timestamp: time.Now().Add(-time.Hour).Unix(),
		Padding:   []byte("0123456789"),
	}}
	copy(c.Header.MainSalt[:], kdf.Salt)

	data := newData(time.Now())
	ct, err := encryptFile(key, "/legacy.txt", []byte("old"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	data.Files["/legacy.txt"] = &FileEntry{Ciphertext: ct, Size: 3}

	header, err := c.Header.Bytes()
	if err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	if c.Main, err = sealData(key, data, header); err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	raw, err := c.Encode()
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
}

func TestVersion1UpgradedOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.bin")
	writeV1(t, path, "old-pass")

	e := newEngine(t, path, Options{})
	unlock(t, e, "old-pass")
	content, err := e.ExtractFile("/legacy.txt")
	if err != nil || string(content) != "old" {
		t.Fatalf("Failed to read legacy file: %q (%v)", content, err)
	}
	if err := e.Save(); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	e.Lock()

	c, err := container.Read(path)
	if err != nil {
		t.Fatalf("Failed to read container: %v", err)
	}
	if c.Header.Version != container.Version2 || len(c.Header.Tag) != crypto.MACSize {
		t.Errorf("Expected upgrade to version 2 with tag, got v%d", c.Header.Version)
	}
	unlock(t, e, "old-pass")
}

func TestChangePassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})
	if err := e.Create([]byte("main"), []byte("decoy")); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	before, _ := container.Read(path)

	unlock(t, e, "main")
	if err := e.AddFile("/f", []byte("payload")); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := e.Save(); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	if err := e.ChangePassword([]byte("nope"), []byte("next")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if err := e.ChangePassword([]byte("main"), []byte("decoy")); !errors.Is(err, ErrSamePassword) {
		t.Errorf("Expected ErrSamePassword, got %v", err)
	}
	if err := e.ChangePassword([]byte("main"), []byte("next")); err != nil {
		t.Fatalf("Failed to change password: %v", err)
	}
	if got, err := e.ExtractFile("/f"); err != nil || string(got) != "payload" {
		t.Errorf("Session should survive re-key: %q (%v)", got, err)
	}
	e.Lock()

	after, _ := container.Read(path)
	if after.Header.MainSalt == before.Header.MainSalt {
		t.Error("Main salt should change")
	}
	if after.Header.Timestamp != before.Header.Timestamp {
		t.Error("Creation timestamp should be kept")
	}

	if _, err := e.Unlock([]byte("main")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Old password should fail, got %v", err)
	}
	unlock(t, e, "next")
	if got, err := e.ExtractFile("/f"); err != nil || string(got) != "payload" {
		t.Errorf("Expected re-encrypted file, got %q (%v)", got, err)
	}
	e.Lock()

	if kind := unlock(t, e, "decoy"); kind != DecoyVault {
		t.Fatalf("Decoy should still open, got %s", kind)
	}
	if err := e.ChangePassword([]byte("decoy"), []byte("x")); !errors.Is(err, ErrDecoyPasswordChange) {
		t.Errorf("Expected ErrDecoyPasswordChange, got %v", err)
	}
}

func TestAutoLock(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{AutoLockAfter: 5 * time.Minute, Now: clock})
	if err := e.Create([]byte("pw"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	unlock(t, e, "pw")

	now = now.Add(4 * time.Minute)
	if e.CheckAutoLock() {
		t.Fatal("Should not lock before the timeout")
	}
	if _, err := e.ListFiles(); err != nil {
		t.Fatalf("Failed to list: %v", err)
	}

	now = now.Add(4 * time.Minute)
	if e.CheckAutoLock() {
		t.Fatal("Activity should have reset the idle timer")
	}

	now = now.Add(6 * time.Minute)
	if !e.CheckAutoLock() {
		t.Fatal("Expected auto-lock")
	}
	if e.IsUnlocked() {
		t.Error("Engine should be locked")
	}
	if _, err := e.ListFiles(); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got %v", err)
	}
}

func TestEmergencyWipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{WipePasses: 1})
	if err := e.Create([]byte("pw"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	unlock(t, e, "pw")

	if err := e.EmergencyWipe("yes"); !errors.Is(err, ErrWipeNotConfirmed) {
		t.Errorf("Expected ErrWipeNotConfirmed, got %v", err)
	}
	if !e.Exists() || !e.IsUnlocked() {
		t.Fatal("Unconfirmed wipe must not touch anything")
	}

	if err := e.EmergencyWipe(WipeConfirmation); err != nil {
		t.Fatalf("Failed to wipe: %v", err)
	}
	if e.Exists() {
		t.Error("Container should be gone")
	}
	if e.IsUnlocked() {
		t.Error("Engine should be locked after wipe")
	}
}

func TestContainerTimestampPinned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})
	if err := e.Create([]byte("pw"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	c, err := container.Read(path)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat: %v", err)
	}
	if st.ModTime().Unix() != c.Header.Timestamp {
		t.Errorf("mtime %d should match header timestamp %d", st.ModTime().Unix(), c.Header.Timestamp)
	}

	info, err := e.Info()
	if err != nil {
		t.Fatalf("Failed to stat container: %v", err)
	}
	if info.Version != container.CurrentVersion || info.Disguised {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestRemoveFileAndMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})
	if err := e.Create([]byte("pw"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	unlock(t, e, "pw")

	if err := e.RemoveFile("/missing"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}
	_ = e.AddFile("/x", []byte("1"))
	_ = e.AddFile("/x", []byte("22"))
	files, _ := e.ListFiles()
	if len(files) != 1 || files[0].Size != 2 {
		t.Errorf("Expected one replaced file, got %+v", files)
	}
	if err := e.RemoveFile("/x"); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	if err := e.AddFile("", []byte("x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName, got %v", err)
	}

	_ = e.SetMetadata("k", []byte("v"))
	_ = e.DeleteMetadata("k")
	if v, _ := e.Metadata("k"); v != nil {
		t.Errorf("Expected deleted metadata, got %q", v)
	}
}

func TestAutoLockOnAccess(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{AutoLockAfter: time.Minute, Now: clock})
	if err := e.Create([]byte("pw"), nil); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	unlock(t, e, "pw")
	if err := e.AddFile("/a", []byte("a")); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := e.ExtractFile("/a"); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected idle session to lock on access, got %v", err)
	}
	if e.IsUnlocked() {
		t.Error("Engine should be locked")
	}

	// Without a limit the session never expires
	e2 := newEngine(t, path, Options{Now: clock})
	unlock(t, e2, "pw")
	now = now.Add(24 * time.Hour)
	if !e2.IsUnlocked() {
		t.Error("Session without auto-lock should stay open")
	}
}

func TestDecoySurvivesMainHeaderDamage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{PaddingMin: 16, PaddingMax: 16})
	if err := e.Create([]byte("main"), []byte("decoy")); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read container: %v", err)
	}
	c, err := container.Parse(original)
	if err != nil {
		t.Fatalf("Failed to parse container: %v", err)
	}

	mainSalt := container.MagicSize + 2 + 8
	decoySalt := mainSalt + crypto.SaltSize
	tag := len(c.HeaderBytes) - 1

	flip := func(offset int) {
		t.Helper()
		tampered := append([]byte(nil), original...)
		tampered[offset] ^= 0x01
		if err := os.WriteFile(path, tampered, 0600); err != nil {
			t.Fatalf("Failed to write tampered container: %v", err)
		}
	}

	// The decoy payload is bound only to magic, timestamp and decoy salt,
	// so it must keep opening when main-only header fields change.
	for _, offset := range []int{mainSalt, tag} {
		flip(offset)
		if _, err := e.Unlock([]byte("main")); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Offset %d: main should fail, got %v", offset, err)
		}
		kind, err := e.Unlock([]byte("decoy"))
		if err != nil || kind != DecoyVault {
			t.Errorf("Offset %d: decoy should still open, got %s / %v", offset, kind, err)
		}
		e.Lock()
	}

	flip(decoySalt)
	if _, err := e.Unlock([]byte("decoy")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Decoy salt damage should fail the decoy, got %v", err)
	}
}

func TestChangePasswordRejectsDecoyAsOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	e := newEngine(t, path, Options{})
	if err := e.Create([]byte("main"), []byte("decoy")); err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	unlock(t, e, "main")

	if err := e.ChangePassword([]byte("decoy"), []byte("next")); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
	}
	if e.Kind() != MainVault {
		t.Error("Main session should stay open")
	}
	e.Lock()
	if kind := unlock(t, e, "main"); kind != MainVault {
		t.Errorf("Main password should be unchanged, got %s", kind)
	}
}

func TestDiscardScrubsPayload(t *testing.T) {
	ct := []byte{1, 2, 3, 4}
	meta := []byte{5, 6}
	d := &Data{
		Files:    map[string]*FileEntry{"/f": {Ciphertext: ct}},
		Metadata: map[string][]byte{"k": meta},
	}
	key, err := crypto.NewKeyGuard(bytes.Repeat([]byte{7}, crypto.KeySize))
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	discard(key, d)
	if !bytes.Equal(ct, make([]byte, len(ct))) || !bytes.Equal(meta, make([]byte, len(meta))) {
		t.Errorf("Payload not scrubbed: %v %v", ct, meta)
	}
	if key.Alive() {
		t.Error("Key should be destroyed")
	}
	discard(nil, nil)
}
