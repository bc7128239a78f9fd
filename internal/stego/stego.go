package stego

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/illarion/cloak/internal/storage"
)

const (
	headerVersion = 1
	checksumSize  = 8
	// HeaderSize is the embedded header: magic, version, length, checksum
	HeaderSize = 4 + 1 + 4 + checksumSize

	DefaultBitsPerUnit = 1
	MaxBitsPerUnit     = 4

	maxTrailerPayload = math.MaxInt32 - HeaderSize
)

var payloadMagic = [4]byte{'S', 'T', 'G', '0'}

var (
	ErrNoPayload          = errors.New("no hidden data found or data corrupted")
	ErrCapacityExceeded   = errors.New("payload exceeds carrier capacity")
	ErrUnsupportedCarrier = errors.New("unsupported carrier format")
	ErrInvalidBits        = errors.New("bits per unit must be between 1 and 4")
)

// Options configures a Codec
type Options struct {
	// BitsPerUnit is how many low bits of each sample carry payload
	BitsPerUnit int
	// Trailer appends the payload after the end of a PNG stream instead of
	// modifying pixels. JPEG and GIF carriers always use the trailer.
	Trailer bool
	Logger  *logrus.Logger
}

// Codec hides and extracts payloads in carrier files
type Codec struct {
	opts   Options
	logger *logrus.Logger
}

// New creates a Codec
func New(opts Options) (*Codec, error) {
	if opts.BitsPerUnit == 0 {
		opts.BitsPerUnit = DefaultBitsPerUnit
	}
	if opts.BitsPerUnit < 1 || opts.BitsPerUnit > MaxBitsPerUnit {
		return nil, ErrInvalidBits
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Codec{opts: opts, logger: logger}, nil
}

// header builds the embedded header for payload
func header(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	h := make([]byte, 0, HeaderSize)
	h = append(h, payloadMagic[:]...)
	h = append(h, headerVersion)
	h = binary.BigEndian.AppendUint32(h, uint32(len(payload)))
	h = append(h, sum[:checksumSize]...)
	return h
}

// parseHeader validates the magic and version and returns the declared
// payload length and checksum
func parseHeader(h []byte) (int, []byte, error) {
	if len(h) < HeaderSize || !bytes.Equal(h[:4], payloadMagic[:]) || h[4] != headerVersion {
		return 0, nil, ErrNoPayload
	}
	return int(binary.BigEndian.Uint32(h[5:9])), h[9:HeaderSize], nil
}

func verifyChecksum(payload, sum []byte) error {
	got := sha256.Sum256(payload)
	if !bytes.Equal(got[:checksumSize], sum) {
		return ErrNoPayload
	}
	return nil
}

// strategy picks how a carrier is handled
func (c *Codec) strategy(carrier []byte) (Format, bool, error) {
	f := sniff(carrier)
	if f == nil {
		if isTrailerCarrier(carrier) {
			return nil, true, nil
		}
		return nil, false, ErrUnsupportedCarrier
	}
	if c.opts.Trailer && f.Name() == "png" {
		return nil, true, nil
	}
	return f, false, nil
}

// Capacity returns how many payload bytes carrier can hold
func (c *Codec) Capacity(carrier []byte) (int, error) {
	f, trailer, err := c.strategy(carrier)
	if err != nil {
		return 0, err
	}
	if trailer {
		return maxTrailerPayload, nil
	}
	s, err := f.Decode(carrier)
	if err != nil {
		return 0, fmt.Errorf("failed to decode %s carrier: %w", f.Name(), err)
	}
	return capacity(s.Samples().Len(), c.opts.BitsPerUnit), nil
}

func capacity(units, bits int) int {
	n := units*bits/8 - HeaderSize
	if n < 0 {
		return 0
	}
	return n
}

// Hide embeds payload into carrier and returns the new carrier bytes. The
// result is decoded again and must yield payload, so a carrier that does
// not survive re-encoding is rejected.
func (c *Codec) Hide(carrier, payload []byte) ([]byte, error) {
	f, trailer, err := c.strategy(carrier)
	if err != nil {
		return nil, err
	}
	if len(payload) > maxTrailerPayload {
		return nil, ErrCapacityExceeded
	}
	data := append(header(payload), payload...)

	var out []byte
	if trailer {
		out, err = appendTrailer(carrier, data)
	} else {
		out, err = c.embed(f, carrier, data)
	}
	if err != nil {
		return nil, err
	}

	got, err := c.Extract(out)
	if err != nil || !bytes.Equal(got, payload) {
		return nil, fmt.Errorf("embedded payload did not survive encoding: %w", ErrUnsupportedCarrier)
	}

	c.logger.WithFields(logrus.Fields{
		"event":   "payload_hidden",
		"bytes":   len(payload),
		"trailer": trailer,
	}).Debug("Payload embedded")
	return out, nil
}

func (c *Codec) embed(f Format, carrier, data []byte) ([]byte, error) {
	s, err := f.Decode(carrier)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s carrier: %w", f.Name(), err)
	}
	samples := s.Samples()
	if len(data)-HeaderSize > capacity(samples.Len(), c.opts.BitsPerUnit) {
		return nil, fmt.Errorf("%w: %d bytes, capacity %d", ErrCapacityExceeded,
			len(data)-HeaderSize, capacity(samples.Len(), c.opts.BitsPerUnit))
	}

	w := newBitWriter(samples, c.opts.BitsPerUnit)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	out, err := s.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s carrier: %w", f.Name(), err)
	}
	if err := f.Verify(out); err != nil {
		return nil, fmt.Errorf("%s carrier is no longer readable: %w", f.Name(), err)
	}
	return out, nil
}

// Extract returns the payload hidden in carrier. The configured bit depth
// is tried first, then the others.
func (c *Codec) Extract(carrier []byte) ([]byte, error) {
	if payload, err := extractTrailer(carrier); err == nil {
		return payload, nil
	}

	f := sniff(carrier)
	if f == nil {
		if isTrailerCarrier(carrier) {
			return nil, ErrNoPayload
		}
		return nil, ErrUnsupportedCarrier
	}
	s, err := f.Decode(carrier)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s carrier: %w", f.Name(), err)
	}
	samples := s.Samples()

	order := []int{c.opts.BitsPerUnit}
	for b := 1; b <= MaxBitsPerUnit; b++ {
		if b != c.opts.BitsPerUnit {
			order = append(order, b)
		}
	}
	for _, bits := range order {
		if payload, err := extractBits(samples, bits); err == nil {
			return payload, nil
		}
	}
	return nil, ErrNoPayload
}

func extractBits(samples Samples, bits int) ([]byte, error) {
	r := newBitReader(samples, bits)
	h := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, h); err != nil {
		return nil, ErrNoPayload
	}
	n, sum, err := parseHeader(h)
	if err != nil {
		return nil, err
	}
	if n > capacity(samples.Len(), bits) {
		return nil, ErrNoPayload
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrNoPayload
	}
	if err := verifyChecksum(payload, sum); err != nil {
		return nil, err
	}
	return payload, nil
}

// HideFile embeds payload into the carrier at carrierPath and writes the
// result to outPath. Capacity is checked before anything is written.
func (c *Codec) HideFile(carrierPath, outPath string, payload []byte) error {
	carrier, err := os.ReadFile(carrierPath)
	if err != nil {
		return fmt.Errorf("failed to read carrier: %w", err)
	}
	out, err := c.Hide(carrier, payload)
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(outPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write carrier: %w", err)
	}
	return nil
}

// ExtractFile reads the payload hidden in the carrier at path
func (c *Codec) ExtractFile(path string) ([]byte, error) {
	carrier, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read carrier: %w", err)
	}
	return c.Extract(carrier)
}

// CapacityFile returns the capacity of the carrier at path
func (c *Codec) CapacityFile(path string) (int, error) {
	carrier, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read carrier: %w", err)
	}
	return c.Capacity(carrier)
}
