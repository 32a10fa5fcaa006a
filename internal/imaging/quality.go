// Package imaging holds the image-side heuristics of the capture pipeline:
// the quality scorer applied to every captured frame, the best-image
// selector that picks which frames are persisted with a registration, and
// the grayscale decoder used by the software device backend.
package imaging

import (
	"math"
	"time"
)

// CapturedImage is one frame delivered by the device during an enrollment
// session, together with its derived attributes. Images are owned by the
// session that captured them and discarded once selection and persistence
// complete.
type CapturedImage struct {
	Data        []byte
	SampleIndex int
	CapturedAt  time.Time
	Quality     float64
}

const bitmapHeaderSize = 54

// Quality computes a deterministic 0-100 score for a raw image buffer from
// three normalized signals: Shannon entropy of the pixel histogram (weight
// 40), contrast as the min-max byte spread (weight 30), and mean absolute
// first-difference over at most the first 1000 pixel bytes (weight 30).
// Buffers under 100 bytes score 0. The scorer is a best-effort heuristic,
// never a hard gate: any degenerate input past the length check yields the
// neutral default of 50.
func Quality(data []byte) float64 {
	if len(data) < 100 {
		return 0
	}

	// Skip the fixed bitmap header when the buffer is long enough to have one.
	start := bitmapHeaderSize
	if len(data) < start {
		start = 0
	}
	pixels := data[start:]
	if len(pixels) == 0 {
		return 50.0
	}

	var histogram [256]int
	minVal, maxVal := pixels[0], pixels[0]
	for _, p := range pixels {
		histogram[p]++
		if p < minVal {
			minVal = p
		}
		if p > maxVal {
			maxVal = p
		}
	}

	entropy := 0.0
	total := float64(len(pixels))
	for _, count := range histogram {
		if count > 0 {
			p := float64(count) / total
			entropy -= p * math.Log2(p)
		}
	}

	contrast := float64(maxVal-minVal) / 255.0

	gradient := 0.0
	if len(pixels) > 1 {
		limit := len(pixels)
		if limit > 1000 {
			limit = 1000
		}
		for i := 1; i < limit; i++ {
			gradient += math.Abs(float64(pixels[i]) - float64(pixels[i-1]))
		}
		gradient /= float64(limit - 1)
		gradient /= 255.0
	}

	quality := (entropy/8.0)*40 + contrast*30 + gradient*30
	return math.Max(0, math.Min(100, quality))
}
