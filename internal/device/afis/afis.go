// Package afis implements the scanner backend on top of the SourceAFIS
// matching engine. Instead of a hardware sensor it consumes scan images from
// a SampleSource, extracts minutiae templates in software, and matches
// templates with the full AFIS pipeline.
package afis

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/jtejido/sourceafis"
	afisconfig "github.com/jtejido/sourceafis/config"

	"fingerprint-be/internal/device"
	"fingerprint-be/internal/imaging"
	"fingerprint-be/internal/pkg/logger"
)

// Result codes reported through OperationComplete. The numbering matches
// the buckets the error layer already classifies for hardware backends.
const (
	codeOK              = 0
	codeCaptureTimeout  = 8
	codeCaptureFailed   = 20
	codeExtractFailed   = 21
	codeSourceRejected  = 22
	codeInvalidTemplate = 40
)

// scoreCeiling anchors the conversion from similarity (higher is better) to
// the FAR-style wire score (lower is better).
const scoreCeiling = 1000

type nopTransparency struct{}

func (nopTransparency) Accepts(key string) bool                    { return false }
func (nopTransparency) Accept(key, mime string, data []byte) error { return nil }

// SoftwareDevice is a device.Device backed by SourceAFIS.
type SoftwareDevice struct {
	source SampleSource
	log    logger.ILogger

	mu     sync.Mutex
	tc     *sourceafis.TemplateCreator
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSoftwareDevice(source SampleSource, log logger.ILogger) *SoftwareDevice {
	return &SoftwareDevice{source: source, log: log}
}

func (d *SoftwareDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	afisconfig.LoadDefaultConfig()
	afisconfig.Config.Workers = runtime.NumCPU()

	d.tc = sourceafis.NewTemplateCreator(sourceafis.NewTransparencyLogger(nopTransparency{}))
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.log.Info("afis", "software matching engine initialized", map[string]interface{}{
		"workers": afisconfig.Config.Workers,
	})
	return nil
}

func (d *SoftwareDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	return d.source.Close()
}

func (d *SoftwareDevice) StartEnroll(opts device.EnrollOptions, events chan<- device.Event) error {
	d.mu.Lock()
	tc, ctx := d.tc, d.ctx
	d.mu.Unlock()
	if tc == nil {
		return fmt.Errorf("device not initialized")
	}
	if opts.SampleCount < 1 {
		opts.SampleCount = 1
	}
	go d.runSession(ctx, tc, opts, events)
	return nil
}

func (d *SoftwareDevice) runSession(ctx context.Context, tc *sourceafis.TemplateCreator, opts device.EnrollOptions, events chan<- device.Event) {
	var lastFrame []byte
	var lastImage *sourceafis.Image

	sample := 0
	for sample < opts.SampleCount {
		sendProgress(events, device.Event{Kind: device.FingerPlaced})

		frame, err := d.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sendFinal(events, device.Event{Kind: device.OperationComplete, Code: codeCaptureTimeout})
				return
			}
			d.log.Error("afis", "sample source failed", map[string]interface{}{"error": err.Error()})
			sendFinal(events, device.Event{Kind: device.OperationComplete, Code: codeCaptureFailed})
			return
		}

		img, err := decodeSample(frame)
		if err != nil {
			// The frame does not decode as a fingerprint image. Let the
			// consumer decide whether to wait for another placement.
			reply := make(chan bool, 1)
			sendProgress(events, device.Event{Kind: device.AmbiguousSource, Reply: reply})
			select {
			case retry := <-reply:
				if retry {
					continue
				}
				sendFinal(events, device.Event{Kind: device.OperationComplete, Code: codeSourceRejected})
				return
			case <-ctx.Done():
				sendFinal(events, device.Event{Kind: device.OperationComplete, Code: codeCaptureTimeout})
				return
			}
		}

		sendProgress(events, device.Event{Kind: device.ImageCaptured, Image: frame})
		sendProgress(events, device.Event{Kind: device.FingerRemoved})

		lastFrame, lastImage = frame, img
		sample++
	}

	tmpl, err := tc.Template(lastImage)
	if err != nil {
		d.log.Error("afis", "template extraction failed", map[string]interface{}{"error": err.Error()})
		sendFinal(events, device.Event{Kind: device.OperationComplete, Code: codeExtractFailed})
		return
	}
	raw, err := MarshalTemplate(tmpl)
	if err != nil {
		sendFinal(events, device.Event{Kind: device.OperationComplete, Code: codeInvalidTemplate})
		return
	}

	sendFinal(events, device.Event{
		Kind:     device.OperationComplete,
		Success:  true,
		Code:     codeOK,
		Template: raw,
		Quality:  int(math.Round(imaging.Quality(lastFrame))),
	})
}

// Verify matches a probe template against a reference template. Rotation and
// fake-finger options are sensor-level concerns with no software equivalent;
// they are accepted and ignored.
func (d *SoftwareDevice) Verify(reference, probe []byte, opts device.VerifyOptions) (device.VerifyResult, error) {
	refTmpl, err := UnmarshalTemplate(reference)
	if err != nil {
		return device.VerifyResult{}, fmt.Errorf("reference template: %w", err)
	}
	probeTmpl, err := UnmarshalTemplate(probe)
	if err != nil {
		return device.VerifyResult{}, fmt.Errorf("probe template: %w", err)
	}

	matcher, err := sourceafis.NewMatcher(sourceafis.NewTransparencyLogger(nopTransparency{}), refTmpl)
	if err != nil {
		return device.VerifyResult{}, fmt.Errorf("create matcher: %w", err)
	}
	similarity := matcher.Match(context.Background(), probeTmpl)

	return device.VerifyResult{
		Matched: similarity >= float64(opts.MatchThreshold),
		Score:   farScore(similarity),
	}, nil
}

// farScore flips a similarity score into the lower-is-closer convention
// used on the wire. Similarities at or above the ceiling clamp to zero.
func farScore(similarity float64) int {
	s := scoreCeiling - int(math.Round(similarity*10))
	if s < 0 {
		return 0
	}
	return s
}

func decodeSample(frame []byte) (*sourceafis.Image, error) {
	gray, err := imaging.DecodeGray(frame)
	if err != nil {
		return nil, err
	}
	return sourceafis.NewFromGray(gray)
}

// sendProgress delivers a progress event without blocking; a slow consumer
// loses progress notifications, never the final outcome.
func sendProgress(events chan<- device.Event, ev device.Event) {
	select {
	case events <- ev:
	default:
	}
}

func sendFinal(events chan<- device.Event, ev device.Event) {
	events <- ev
}
