package stego

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
)

var trailerMagic = []byte("STGT")

const trailerFooter = 4 + 4

func isTrailerCarrier(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) ||
		bytes.HasPrefix(data, []byte("GIF87a")) ||
		bytes.HasPrefix(data, []byte("GIF89a"))
}

// appendTrailer places data after the end of the image stream, followed
// by its length and a marker. An earlier trailer is replaced.
func appendTrailer(carrier, data []byte) ([]byte, error) {
	carrier = stripTrailer(carrier)
	if _, _, err := image.DecodeConfig(bytes.NewReader(carrier)); err != nil {
		return nil, fmt.Errorf("failed to decode carrier: %w", err)
	}

	out := make([]byte, 0, len(carrier)+len(data)+trailerFooter)
	out = append(out, carrier...)
	out = append(out, data...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, trailerMagic...)

	if _, _, err := image.Decode(bytes.NewReader(out)); err != nil {
		return nil, fmt.Errorf("carrier is no longer readable: %w", err)
	}
	return out, nil
}

// trailerBlock returns the start offset of a well formed trailer
func trailerBlock(carrier []byte) (int, bool) {
	if len(carrier) < trailerFooter+HeaderSize || !bytes.HasSuffix(carrier, trailerMagic) {
		return 0, false
	}
	n := int(binary.BigEndian.Uint32(carrier[len(carrier)-trailerFooter:]))
	start := len(carrier) - trailerFooter - n
	if n < HeaderSize || start < 0 {
		return 0, false
	}
	return start, true
}

func stripTrailer(carrier []byte) []byte {
	if _, err := extractTrailer(carrier); err != nil {
		return carrier
	}
	start, _ := trailerBlock(carrier)
	return carrier[:start]
}

func extractTrailer(carrier []byte) ([]byte, error) {
	start, ok := trailerBlock(carrier)
	if !ok {
		return nil, ErrNoPayload
	}
	block := carrier[start : len(carrier)-trailerFooter]
	n, sum, err := parseHeader(block)
	if err != nil {
		return nil, err
	}
	if n != len(block)-HeaderSize {
		return nil, ErrNoPayload
	}
	payload := bytes.Clone(block[HeaderSize:])
	if err := verifyChecksum(payload, sum); err != nil {
		return nil, err
	}
	return payload, nil
}
