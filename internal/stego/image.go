package stego

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"

	"golang.org/x/image/bmp"
)

// Format embeds into the sample space of one carrier type
type Format interface {
	Name() string
	Match(data []byte) bool
	Decode(data []byte) (Carrier, error)
	// Verify checks that an encoded carrier is still well formed
	Verify(data []byte) error
}

// Carrier is a decoded carrier whose samples can be changed in place
type Carrier interface {
	Samples() Samples
	Encode() ([]byte, error)
}

var formats = []Format{pngFormat{}, bmpFormat{}, wavFormat{}}

func sniff(data []byte) Format {
	for _, f := range formats {
		if f.Match(data) {
			return f
		}
	}
	return nil
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type pngFormat struct{}

func (pngFormat) Name() string { return "png" }

func (pngFormat) Match(data []byte) bool { return bytes.HasPrefix(data, pngMagic) }

func (pngFormat) Decode(data []byte) (Carrier, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &rgbCarrier{img: toNRGBA(img), encode: encodePNG}, nil
}

func (pngFormat) Verify(data []byte) error {
	_, err := png.DecodeConfig(bytes.NewReader(data))
	return err
}

func encodePNG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type bmpFormat struct{}

func (bmpFormat) Name() string { return "bmp" }

func (bmpFormat) Match(data []byte) bool { return len(data) > 14 && data[0] == 'B' && data[1] == 'M' }

func (bmpFormat) Decode(data []byte) (Carrier, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &rgbCarrier{img: toNRGBA(img), encode: encodeBMP}, nil
}

func (bmpFormat) Verify(data []byte) error {
	_, err := bmp.DecodeConfig(bytes.NewReader(data))
	return err
}

func encodeBMP(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	b := img.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), img, b.Min, draw.Src)
	return n
}

// rgbCarrier exposes the red, green and blue channels of every pixel.
// Alpha is left alone.
type rgbCarrier struct {
	img    *image.NRGBA
	encode func(*image.NRGBA) ([]byte, error)
}

func (c *rgbCarrier) Samples() Samples { return rgbSamples(c.img.Pix) }

func (c *rgbCarrier) Encode() ([]byte, error) { return c.encode(c.img) }

type rgbSamples []byte

func (s rgbSamples) Len() int          { return len(s) / 4 * 3 }
func (s rgbSamples) Get(i int) byte    { return s[i/3*4+i%3] }
func (s rgbSamples) Set(i int, v byte) { s[i/3*4+i%3] = v }
