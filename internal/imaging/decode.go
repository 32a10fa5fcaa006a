package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	// Registered for their side effects: fingerprint corpora commonly ship
	// as WSQ (FBI wavelet) or PGM scans alongside PNG/JPEG.
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/jtejido/go-wsq"
	_ "github.com/spakin/netpbm"
)

// DecodeGray decodes an image buffer in any registered format and converts
// it to 8-bit grayscale, the representation the matcher backend works on.
func DecodeGray(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}

	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray, nil
}
