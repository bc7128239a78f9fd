package stego

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

const wavPCM = 1

var errInvalidWAV = errors.New("invalid or unsupported WAV file")

type wavFormat struct{}

func (wavFormat) Name() string { return "wav" }

func (wavFormat) Match(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func (wavFormat) Decode(data []byte) (Carrier, error) {
	if err := (wavFormat{}).Verify(data); err != nil {
		return nil, err
	}
	out := bytes.Clone(data)
	off, size, width, err := pcmData(out)
	if err != nil {
		return nil, err
	}
	return &wavCarrier{data: out, samples: pcmSamples{pcm: out[off : off+size], width: width}}, nil
}

func (wavFormat) Verify(data []byte) error {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return errInvalidWAV
	}
	return nil
}

// pcmData walks the RIFF chunks and returns the offset and length of the
// sample data and the byte width of one sample
func pcmData(data []byte) (int, int, int, error) {
	var (
		width   int
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, 0, 0, errInvalidWAV
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			depth := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != wavPCM || (depth != 8 && depth != 16) {
				return 0, 0, 0, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedCarrier, format, depth)
			}
			width = int(depth / 8)
			haveFmt = true
		case "data":
			if !haveFmt {
				return 0, 0, 0, errInvalidWAV
			}
			size -= size % width
			return body, size, width, nil
		}

		// Chunks are word aligned
		pos = body + size + size%2
	}
	return 0, 0, 0, errInvalidWAV
}

type wavCarrier struct {
	data    []byte
	samples pcmSamples
}

func (c *wavCarrier) Samples() Samples { return c.samples }

func (c *wavCarrier) Encode() ([]byte, error) { return c.data, nil }

// pcmSamples exposes the least significant byte of each little-endian
// sample
type pcmSamples struct {
	pcm   []byte
	width int
}

func (s pcmSamples) Len() int          { return len(s.pcm) / s.width }
func (s pcmSamples) Get(i int) byte    { return s.pcm[i*s.width] }
func (s pcmSamples) Set(i int, v byte) { s.pcm[i*s.width] = v }
