package stego

import "io"

// Samples is a view over the modifiable units of a carrier: one color
// channel of a pixel or the low byte of an audio sample
type Samples interface {
	Len() int
	Get(i int) byte
	Set(i int, v byte)
}

// bitWriter spreads a byte stream over the low bits of consecutive units,
// most significant bit first
type bitWriter struct {
	s    Samples
	bits int
	unit int
	acc  byte
	n    int
}

func newBitWriter(s Samples, bits int) *bitWriter {
	return &bitWriter{s: s, bits: bits}
}

func (w *bitWriter) Write(p []byte) (int, error) {
	for i, b := range p {
		for j := 7; j >= 0; j-- {
			w.acc = w.acc<<1 | (b>>j)&1
			w.n++
			if w.n == w.bits {
				if err := w.store(); err != nil {
					return i, err
				}
			}
		}
	}
	return len(p), nil
}

// Flush stores a trailing partial unit, padded with zero bits
func (w *bitWriter) Flush() error {
	if w.n == 0 {
		return nil
	}
	w.acc <<= w.bits - w.n
	return w.store()
}

func (w *bitWriter) store() error {
	if w.unit >= w.s.Len() {
		return ErrCapacityExceeded
	}
	mask := byte(1)<<w.bits - 1
	w.s.Set(w.unit, w.s.Get(w.unit)&^mask|w.acc&mask)
	w.unit++
	w.acc, w.n = 0, 0
	return nil
}

type bitReader struct {
	s    Samples
	bits int
	unit int
	acc  byte
	n    int
}

func newBitReader(s Samples, bits int) *bitReader {
	return &bitReader{s: s, bits: bits}
}

func (r *bitReader) Read(p []byte) (int, error) {
	for i := range p {
		var b byte
		for range 8 {
			if r.n == 0 {
				if r.unit >= r.s.Len() {
					return i, io.EOF
				}
				r.acc = r.s.Get(r.unit) & (byte(1)<<r.bits - 1)
				r.n = r.bits
				r.unit++
			}
			r.n--
			b = b<<1 | (r.acc>>r.n)&1
		}
		p[i] = b
	}
	return len(p), nil
}
