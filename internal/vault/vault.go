package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/antiforensics"
	"github.com/illarion/cloak/internal/container"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/lockout"
	"github.com/illarion/cloak/internal/storage"
)

// WipeConfirmation must be passed verbatim to EmergencyWipe
const WipeConfirmation = "DESTROY-CONTAINER-PERMANENTLY"

const dataVersion = 1

var (
	ErrInvalidCredentials  = errors.New("invalid credentials or corrupted data")
	ErrLocked              = errors.New("vault is locked")
	ErrExists              = errors.New("container already exists")
	ErrNotExist            = errors.New("container does not exist")
	ErrFileNotFound        = errors.New("file not found in vault")
	ErrEmptyPassword       = errors.New("password must not be empty")
	ErrSamePassword        = errors.New("decoy password must differ from the main password")
	ErrDecoyPasswordChange = errors.New("password change is not supported for this container")
	ErrWipeNotConfirmed    = errors.New("emergency wipe requires explicit confirmation")
)

// Kind tells which payload an unlock opened
type Kind int

const (
	AuthFailure Kind = iota
	MainVault
	DecoyVault
)

func (k Kind) String() string {
	switch k {
	case MainVault:
		return "main"
	case DecoyVault:
		return "decoy"
	default:
		return "auth-failure"
	}
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Iterations      int
	PaddingMin      int
	PaddingMax      int
	Disguise        bool          // use the disguise magic even without a decoy
	AutoLockAfter   time.Duration // zero disables auto-lock
	TimestampWindow time.Duration
	WipePasses      int
	Lockout         *lockout.Guard // nil disables brute-force lockout
	Logger          *logrus.Logger
	Now             func() time.Time
}

// FileEntry is one encrypted file inside the vault data
type FileEntry struct {
	Ciphertext []byte    `json:"ciphertext"`
	Size       int64     `json:"size"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// Data is the decrypted payload of a container
type Data struct {
	Version  int                   `json:"version"`
	Created  time.Time             `json:"created"`
	Files    map[string]*FileEntry `json:"files"`
	Metadata map[string][]byte     `json:"metadata"`
}

func newData(now time.Time) *Data {
	return &Data{
		Version:  dataVersion,
		Created:  now,
		Files:    make(map[string]*FileEntry),
		Metadata: make(map[string][]byte),
	}
}

// Engine manages one container file. Methods are serialized; an engine is
// not meant to share a container with another process.
type Engine struct {
	mu     sync.Mutex
	path   string
	id     string
	opts   Options
	logger *logrus.Logger

	key      *crypto.KeyGuard
	kind     Kind
	data     *Data
	current  *container.Container
	activity time.Time
}

// New creates an engine for the container at path
func New(path string, opts Options) (*Engine, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	id, err := lockout.ContainerID(abs)
	if err != nil {
		return nil, err
	}

	if opts.Iterations <= 0 {
		opts.Iterations = crypto.DefaultIters
	}
	if opts.PaddingMin == 0 && opts.PaddingMax == 0 {
		opts.PaddingMin = container.DefaultPaddingMin
		opts.PaddingMax = container.DefaultPaddingMax
	}
	if opts.TimestampWindow <= 0 {
		opts.TimestampWindow = antiforensics.DefaultTimestampWindow
	}
	if opts.WipePasses <= 0 {
		opts.WipePasses = antiforensics.DefaultPasses
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Engine{path: abs, id: id, opts: opts, logger: logger}, nil
}

// Path returns the absolute container path
func (e *Engine) Path() string {
	return e.path
}

// ID returns the container identity used for lockout state
func (e *Engine) ID() string {
	return e.id
}

// Exists reports whether the container file exists
func (e *Engine) Exists() bool {
	_, err := os.Stat(e.path)
	return err == nil
}

// Create writes a new container protected by password. When decoyPassword is
// non-empty a second payload with innocuous content is added, opened by that
// password. The engine stays locked afterwards.
func (e *Engine) Create(password, decoyPassword []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if len(decoyPassword) > 0 && crypto.ConstantTimeCompare(password, decoyPassword) {
		return ErrSamePassword
	}
	if _, err := os.Stat(e.path); err == nil {
		return ErrExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check container: %w", err)
	}

	now := e.opts.Now()
	created := antiforensics.RandomTime(now, e.opts.TimestampWindow)

	padding, err := container.NewPadding(e.opts.PaddingMin, e.opts.PaddingMax)
	if err != nil {
		return err
	}
	h := container.Header{
		Magic:     container.MagicVault,
		Version:   container.CurrentVersion,
		Timestamp: created.Unix(),
		Padding:   padding,
	}
	if e.opts.Disguise || len(decoyPassword) > 0 {
		h.Magic = container.MagicDisguise
	}

	mainKey, err := e.newKey(password, h.MainSalt[:])
	if err != nil {
		return err
	}
	defer mainKey.Destroy()

	c := &container.Container{Header: h}

	var decoyKey *crypto.KeyGuard
	if len(decoyPassword) > 0 {
		decoyKey, err = e.newKey(decoyPassword, c.Header.DecoySalt[:])
		if err != nil {
			return err
		}
		defer decoyKey.Destroy()

		decoy, err := newDecoyData(decoyKey, now)
		if err != nil {
			return fmt.Errorf("failed to build decoy payload: %w", err)
		}
		c.Decoy, err = sealData(decoyKey, decoy, c.Header.DecoyAAD())
		if err != nil {
			return err
		}
	}

	if err := e.sealMain(mainKey, c, newData(now)); err != nil {
		return err
	}
	if err := e.write(c); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"event": "container_created",
		"path":  e.path,
	}).Info("Container created")
	return nil
}

// newKey generates a fresh salt into salt and derives a guarded key from password
func (e *Engine) newKey(password, salt []byte) (*crypto.KeyGuard, error) {
	kdf, err := crypto.NewKDF(e.opts.Iterations)
	if err != nil {
		return nil, err
	}
	copy(salt, kdf.Salt)
	return crypto.NewKeyGuard(kdf.DeriveKey(password))
}

func (e *Engine) deriveKey(password, salt []byte) []byte {
	kdf := crypto.KDF{Salt: salt, Iterations: e.opts.Iterations}
	return kdf.DeriveKey(password)
}

// sealMain tags the header with key and seals data as the main blob.
// The main blob is bound to the complete header, tag included.
func (e *Engine) sealMain(key *crypto.KeyGuard, c *container.Container, data *Data) error {
	c.Header.Version = container.CurrentVersion
	tag, err := key.HeaderTag(c.Header.AuthenticatedBytes())
	if err != nil {
		return err
	}
	c.Header.Tag = tag

	header, err := c.Header.Bytes()
	if err != nil {
		return err
	}
	c.Main, err = sealData(key, data, header)
	return err
}

func sealData(key *crypto.KeyGuard, data *Data, aad []byte) ([]byte, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vault data: %w", err)
	}
	defer crypto.ClearBytes(plaintext)

	var blob []byte
	err = key.WithEncryptor(crypto.LabelPayload, func(enc *crypto.Encryptor) error {
		var err error
		blob, err = enc.Encrypt(plaintext, aad)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt vault data: %w", err)
	}
	return blob, nil
}

func openData(key *crypto.KeyGuard, blob, aad []byte) (*Data, error) {
	var plaintext []byte
	err := key.WithEncryptor(crypto.LabelPayload, func(enc *crypto.Encryptor) error {
		var err error
		plaintext, err = enc.Decrypt(blob, aad)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(plaintext)

	data := &Data{}
	if err := json.Unmarshal(plaintext, data); err != nil {
		return nil, fmt.Errorf("failed to decode vault data: %w", err)
	}
	if data.Files == nil {
		data.Files = make(map[string]*FileEntry)
	}
	if data.Metadata == nil {
		data.Metadata = make(map[string][]byte)
	}
	return data, nil
}

// write encodes c, replaces the container atomically and pins the file
// timestamps to the header creation time.
func (e *Engine) write(c *container.Container) error {
	raw, err := c.Encode()
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(e.path, raw, storage.FilePerm); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	if err := antiforensics.SetTimestamps(e.path, time.Unix(c.Header.Timestamp, 0)); err != nil {
		e.logger.WithFields(logrus.Fields{"event": "timestamp_failed", "error": err}).Warn("Failed to set container timestamps")
	}
	e.current = c
	return nil
}

// Unlock opens the container with password. It returns MainVault or
// DecoyVault on success. Wrong passwords and tampered containers both
// return ErrInvalidCredentials. While a lockout window is active the
// attempt is rejected with lockout.ErrLockedOut before any key derivation.
func (e *Engine) Unlock(password []byte) (Kind, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.Lockout != nil {
		if err := e.opts.Lockout.Check(e.id); err != nil {
			return AuthFailure, err
		}
	}

	raw, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return AuthFailure, fmt.Errorf("%w: %s", ErrNotExist, e.path)
		}
		return AuthFailure, fmt.Errorf("failed to read container: %w", err)
	}

	kind, key, data, c := e.tryPassword(raw, password)
	if kind == AuthFailure {
		return AuthFailure, e.recordFailure()
	}

	e.lockSession()
	e.key, e.kind, e.data, e.current = key, kind, data, c
	e.activity = e.opts.Now()

	if e.opts.Lockout != nil {
		if err := e.opts.Lockout.Reset(e.id); err != nil {
			e.logger.WithFields(logrus.Fields{"event": "lockout_reset_failed", "error": err}).Warn("Failed to reset lockout state")
		}
	}
	e.logger.WithFields(logrus.Fields{"event": "vault_unlocked", "path": e.path}).Info("Vault unlocked")
	return kind, nil
}

// tryPassword attempts the main payload, then the decoy payload. Both keys
// are derived whenever a decoy salt exists so the two outcomes cost the same.
func (e *Engine) tryPassword(raw, password []byte) (Kind, *crypto.KeyGuard, *Data, *container.Container) {
	c, err := container.Parse(raw)
	if err != nil {
		// Same cost as a real attempt
		crypto.ClearBytes(e.deriveKey(password, make([]byte, crypto.SaltSize)))
		return AuthFailure, nil, nil, nil
	}

	mainKey, err := crypto.NewKeyGuard(e.deriveKey(password, c.Header.MainSalt[:]))
	if err != nil {
		return AuthFailure, nil, nil, nil
	}
	var decoyRaw []byte
	if c.Header.HasDecoy() {
		decoyRaw = e.deriveKey(password, c.Header.DecoySalt[:])
	}

	if data, ok := openMain(mainKey, c); ok {
		crypto.ClearBytes(decoyRaw)
		return MainVault, mainKey, data, c
	}
	mainKey.Destroy()

	if decoyRaw == nil || c.Decoy == nil {
		crypto.ClearBytes(decoyRaw)
		return AuthFailure, nil, nil, nil
	}
	decoyKey, err := crypto.NewKeyGuard(decoyRaw)
	if err != nil {
		return AuthFailure, nil, nil, nil
	}
	data, err := openData(decoyKey, c.Decoy, c.Header.DecoyAAD())
	if err != nil {
		decoyKey.Destroy()
		return AuthFailure, nil, nil, nil
	}
	return DecoyVault, decoyKey, data, c
}

func openMain(key *crypto.KeyGuard, c *container.Container) (*Data, bool) {
	if c.Header.Version >= container.Version2 {
		if !key.VerifyHeaderTag(c.Header.AuthenticatedBytes(), c.Header.Tag) {
			return nil, false
		}
	}
	data, err := openData(key, c.Main, c.HeaderBytes)
	if err != nil {
		return nil, false
	}
	return data, true
}

// recordFailure persists the failed attempt before the failure is returned
func (e *Engine) recordFailure() error {
	if e.opts.Lockout == nil {
		return ErrInvalidCredentials
	}
	if _, err := e.opts.Lockout.RecordFailure(e.id); err != nil {
		return errors.Join(ErrInvalidCredentials, err)
	}
	return ErrInvalidCredentials
}

// Lock scrubs the key and all decrypted state
func (e *Engine) Lock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockSession()
}

func (e *Engine) lockSession() {
	if e.data != nil {
		for name, f := range e.data.Files {
			crypto.ClearBytes(f.Ciphertext)
			delete(e.data.Files, name)
		}
		for k, v := range e.data.Metadata {
			crypto.ClearBytes(v)
			delete(e.data.Metadata, k)
		}
	}
	e.key.Destroy()
	e.key = nil
	e.data = nil
	e.current = nil
	e.kind = AuthFailure
}

// IsUnlocked reports whether a session is open. A session idle past
// AutoLockAfter is locked first.
func (e *Engine) IsUnlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoLock()
	return e.key.Alive()
}

// Kind returns the payload of the open session, or AuthFailure when locked
func (e *Engine) Kind() Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind
}

// requireUnlocked gates every session operation. A session idle past
// AutoLockAfter is locked here before the caller can use it.
func (e *Engine) requireUnlocked() error {
	if !e.key.Alive() || e.data == nil {
		return ErrLocked
	}
	if e.autoLock() {
		return ErrLocked
	}
	e.activity = e.opts.Now()
	return nil
}

// Save persists the open session. Only the payload that was unlocked is
// rewritten; the other payload is copied byte for byte.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return err
	}

	c := &container.Container{
		Header: e.current.Header,
		Main:   e.current.Main,
		Decoy:  e.current.Decoy,
	}

	var err error
	if e.kind == MainVault {
		err = e.sealMain(e.key, c, e.data)
	} else {
		c.Decoy, err = sealData(e.key, e.data, c.Header.DecoyAAD())
	}
	if err != nil {
		return err
	}
	return e.write(c)
}

// ChangePassword re-keys the main payload. old is verified against the
// container on disk through the same lockout-guarded path as Unlock.
// Every file is re-encrypted under the new key and the container is
// rewritten atomically with a fresh salt, padding and header tag.
func (e *Engine) ChangePassword(oldPassword, newPassword []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireUnlocked(); err != nil {
		return err
	}
	if e.kind != MainVault {
		return ErrDecoyPasswordChange
	}
	if len(newPassword) == 0 {
		return ErrEmptyPassword
	}

	if e.opts.Lockout != nil {
		if err := e.opts.Lockout.Check(e.id); err != nil {
			return err
		}
	}
	raw, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("failed to read container: %w", err)
	}
	kind, verifyKey, verifyData, _ := e.tryPassword(raw, oldPassword)
	discard(verifyKey, verifyData)
	if kind != MainVault {
		return e.recordFailure()
	}

	c := &container.Container{
		Header: e.current.Header,
		Decoy:  e.current.Decoy,
	}
	// A main password equal to the decoy password would make the decoy unreachable
	if e.opensDecoy(c, newPassword) {
		return ErrSamePassword
	}

	newKey, err := e.newKey(newPassword, c.Header.MainSalt[:])
	if err != nil {
		return err
	}
	if c.Header.Padding, err = container.NewPadding(e.opts.PaddingMin, e.opts.PaddingMax); err != nil {
		newKey.Destroy()
		return err
	}

	files, err := e.reencrypt(newKey)
	if err != nil {
		newKey.Destroy()
		return err
	}
	data := &Data{
		Version:  e.data.Version,
		Created:  e.data.Created,
		Files:    files,
		Metadata: e.data.Metadata,
	}

	if err := e.sealMain(newKey, c, data); err != nil {
		newKey.Destroy()
		return err
	}
	if err := e.write(c); err != nil {
		newKey.Destroy()
		return err
	}

	for _, f := range e.data.Files {
		crypto.ClearBytes(f.Ciphertext)
	}
	e.key.Destroy()
	e.key = newKey
	e.data = data

	e.logger.WithFields(logrus.Fields{"event": "password_changed", "path": e.path}).Info("Container password changed")
	return nil
}

func (e *Engine) opensDecoy(c *container.Container, password []byte) bool {
	if !c.Header.HasDecoy() || c.Decoy == nil {
		return false
	}
	key, err := crypto.NewKeyGuard(e.deriveKey(password, c.Header.DecoySalt[:]))
	if err != nil {
		return false
	}
	defer key.Destroy()
	data, err := openData(key, c.Decoy, c.Header.DecoyAAD())
	if err != nil {
		return false
	}
	scrubData(data)
	return true
}

func (e *Engine) reencrypt(newKey *crypto.KeyGuard) (map[string]*FileEntry, error) {
	files := make(map[string]*FileEntry, len(e.data.Files))
	for name, f := range e.data.Files {
		plaintext, err := decryptFile(e.key, name, f.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", name, err)
		}
		ct, err := encryptFile(newKey, name, plaintext)
		crypto.ClearBytes(plaintext)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s: %w", name, err)
		}
		entry := *f
		entry.Ciphertext = ct
		files[name] = &entry
	}
	return files, nil
}

// discard destroys a key and scrubs the payload it opened. Either may be nil.
func discard(key *crypto.KeyGuard, data *Data) {
	if key != nil {
		key.Destroy()
	}
	scrubData(data)
}

func scrubData(d *Data) {
	if d == nil {
		return
	}
	for _, f := range d.Files {
		crypto.ClearBytes(f.Ciphertext)
	}
	for _, v := range d.Metadata {
		crypto.ClearBytes(v)
	}
}

// CheckAutoLock locks the session when it has been idle longer than the
// configured AutoLockAfter. It reports whether a lock happened.
func (e *Engine) CheckAutoLock() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoLock()
}

func (e *Engine) autoLock() bool {
	if e.opts.AutoLockAfter <= 0 || !e.key.Alive() {
		return false
	}
	if e.opts.Now().Sub(e.activity) < e.opts.AutoLockAfter {
		return false
	}
	e.lockSession()
	e.logger.WithFields(logrus.Fields{"event": "auto_locked", "path": e.path}).Info("Vault auto-locked after inactivity")
	return true
}

// EmergencyWipe locks the session and destroys the container file with a
// multi-pass overwrite. confirmation must equal WipeConfirmation.
func (e *Engine) EmergencyWipe(confirmation string) error {
	if confirmation != WipeConfirmation {
		return ErrWipeNotConfirmed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lockSession()
	if err := antiforensics.SecureDelete(e.path, e.opts.WipePasses); err != nil {
		return fmt.Errorf("failed to wipe container: %w", err)
	}
	e.logger.WithFields(logrus.Fields{"event": "container_wiped", "path": e.path}).Warn("Container destroyed")
	return nil
}

// Info describes a container without opening it
type Info struct {
	Path      string
	Size      int64
	Version   uint16
	Created   time.Time
	Disguised bool
}

// Info reads the unauthenticated container facts
func (e *Engine) Info() (*Info, error) {
	c, err := container.Read(e.path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(e.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat container: %w", err)
	}
	return &Info{
		Path:      e.path,
		Size:      st.Size(),
		Version:   c.Header.Version,
		Created:   time.Unix(c.Header.Timestamp, 0),
		Disguised: c.Header.Disguised(),
	}, nil
}
