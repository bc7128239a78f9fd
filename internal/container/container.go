package container

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/illarion/cloak/internal/crypto"
)

const (
	Version1       uint16 = 1 // no header tag
	Version2       uint16 = 2 // HMAC-SHA256 header tag
	CurrentVersion        = Version2

	MagicSize  = 4
	fixedSize  = MagicSize + 2 + 8 + crypto.SaltSize + crypto.SaltSize + 2
	lengthSize = 4

	DefaultPaddingMin = 64
	DefaultPaddingMax = 1024
	MaxPadding        = 0xFFFF
)

var (
	// MagicVault marks an ordinary container
	MagicVault = [MagicSize]byte{'C', 'L', 'K', 'V'}
	// MagicDisguise is the TrueType font signature, making the file look like a font
	MagicDisguise = [MagicSize]byte{0x00, 0x01, 0x00, 0x00}
)

var (
	ErrFormat       = errors.New("invalid container format")
	ErrVersion      = errors.New("unsupported container version")
	ErrInvalidRange = errors.New("invalid padding range")
)

// Header is the unencrypted container header
type Header struct {
	Magic     [MagicSize]byte
	Version   uint16
	Timestamp int64 // unix seconds
	MainSalt  [crypto.SaltSize]byte
	DecoySalt [crypto.SaltSize]byte
	Padding   []byte
	Tag       []byte // Version2 only
}

// HasDecoy reports whether the header carries a decoy salt
func (h *Header) HasDecoy() bool {
	var zero [crypto.SaltSize]byte
	return h.DecoySalt != zero
}

// Disguised reports whether the header uses the disguise magic
func (h *Header) Disguised() bool {
	return h.Magic == MagicDisguise
}

// AuthenticatedBytes returns the header bytes covered by the header tag
func (h *Header) AuthenticatedBytes() []byte {
	var buf bytes.Buffer
	buf.Grow(fixedSize + len(h.Padding))
	buf.Write(h.Magic[:])
	_ = binary.Write(&buf, binary.BigEndian, h.Version)
	_ = binary.Write(&buf, binary.BigEndian, h.Timestamp)
	buf.Write(h.MainSalt[:])
	buf.Write(h.DecoySalt[:])
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(h.Padding)))
	buf.Write(h.Padding)
	return buf.Bytes()
}

// Bytes returns the full encoded header, including the tag for Version2
func (h *Header) Bytes() ([]byte, error) {
	if len(h.Padding) > MaxPadding {
		return nil, fmt.Errorf("%w: padding too long", ErrFormat)
	}
	out := h.AuthenticatedBytes()
	switch h.Version {
	case Version1:
		return out, nil
	case Version2:
		if len(h.Tag) != crypto.MACSize {
			return nil, fmt.Errorf("%w: missing header tag", ErrFormat)
		}
		return append(out, h.Tag...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
}

// DecoyAAD returns the associated data binding the decoy blob to its header
// fields. It covers only fields a main session never rewrites, so saving or
// re-keying the main payload keeps the decoy blob valid.
func (h *Header) DecoyAAD() []byte {
	aad := make([]byte, 0, MagicSize+8+crypto.SaltSize)
	aad = append(aad, h.Magic[:]...)
	aad = binary.BigEndian.AppendUint64(aad, uint64(h.Timestamp))
	aad = append(aad, h.DecoySalt[:]...)
	return aad
}

// Container is a parsed container file
type Container struct {
	Header      Header
	HeaderBytes []byte // raw header as read or last encoded
	Main        []byte // nonce || ciphertext
	Decoy       []byte // nil when no decoy payload is present
}

// Parse decodes a container from raw file bytes
func Parse(data []byte) (*Container, error) {
	r := bytes.NewReader(data)
	c := &Container{}
	h := &c.Header

	if _, err := io.ReadFull(r, h.Magic[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrFormat)
	}
	if h.Magic != MagicVault && h.Magic != MagicDisguise {
		return nil, fmt.Errorf("%w: unknown magic", ErrFormat)
	}

	var padLen uint16
	for _, field := range []any{&h.Version, &h.Timestamp, &h.MainSalt, &h.DecoySalt, &padLen} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, fmt.Errorf("%w: short header", ErrFormat)
		}
	}
	if h.Version != Version1 && h.Version != Version2 {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}

	h.Padding = make([]byte, padLen)
	if _, err := io.ReadFull(r, h.Padding); err != nil {
		return nil, fmt.Errorf("%w: short padding", ErrFormat)
	}
	if h.Version >= Version2 {
		h.Tag = make([]byte, crypto.MACSize)
		if _, err := io.ReadFull(r, h.Tag); err != nil {
			return nil, fmt.Errorf("%w: short header tag", ErrFormat)
		}
	}

	headerLen := len(data) - r.Len()
	c.HeaderBytes = append([]byte(nil), data[:headerLen]...)

	main, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	c.Main = main

	if r.Len() > 0 {
		decoy, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		c.Decoy = decoy
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrFormat)
	}

	return c, nil
}

func readBlob(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: missing payload length", ErrFormat)
	}
	if int64(n) > int64(r.Len()) || n < crypto.NonceSize+crypto.TagSize {
		return nil, fmt.Errorf("%w: bad payload length", ErrFormat)
	}
	blob := make([]byte, n)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, fmt.Errorf("%w: short payload", ErrFormat)
	}
	return blob, nil
}

// Encode serializes the container. HeaderBytes is refreshed from Header.
func (c *Container) Encode() ([]byte, error) {
	header, err := c.Header.Bytes()
	if err != nil {
		return nil, err
	}
	c.HeaderBytes = header

	var buf bytes.Buffer
	buf.Grow(len(header) + 2*lengthSize + len(c.Main) + len(c.Decoy))
	buf.Write(header)
	writeBlob(&buf, c.Main)
	if c.Decoy != nil {
		writeBlob(&buf, c.Decoy)
	}
	return buf.Bytes(), nil
}

func writeBlob(buf *bytes.Buffer, blob []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(blob)))
	buf.Write(blob)
}

// Read loads and parses a container file
func Read(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}
	return Parse(data)
}

// NewPadding returns random bytes of a random length in [lo, hi]
func NewPadding(lo, hi int) ([]byte, error) {
	if lo < 0 || hi < lo || hi > MaxPadding {
		return nil, fmt.Errorf("%w: %d..%d", ErrInvalidRange, lo, hi)
	}
	n := lo
	if hi > lo {
		r, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo+1)))
		if err != nil {
			return nil, fmt.Errorf("failed to pick padding length: %w", err)
		}
		n += int(r.Int64())
	}
	return crypto.GenerateRandom(n)
}
