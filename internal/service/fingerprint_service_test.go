package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fingerprint-be/internal/apperr"
	"fingerprint-be/internal/config"
	"fingerprint-be/internal/device"
	"fingerprint-be/internal/dto"
	"fingerprint-be/internal/pkg/logger"
	"fingerprint-be/internal/storage"
	"fingerprint-be/internal/template"
)

// scriptedDevice plays back a deterministic capture session and answers
// verifications through a pluggable function.
type scriptedDevice struct {
	mu          sync.Mutex
	startCalls  int
	verifyCalls int

	template []byte // template delivered on success
	failCode int    // when non-zero the session fails with this code
	frame    []byte // image emitted per sample

	verifyFn func(reference, probe []byte) (device.VerifyResult, error)
}

func (d *scriptedDevice) Init() error { return nil }
func (d *scriptedDevice) Close() error { return nil }

func (d *scriptedDevice) StartEnroll(opts device.EnrollOptions, events chan<- device.Event) error {
	d.mu.Lock()
	d.startCalls++
	failCode, tmpl, frame := d.failCode, d.template, d.frame
	d.mu.Unlock()

	go func() {
		for i := 0; i < opts.SampleCount; i++ {
			events <- device.Event{Kind: device.FingerPlaced}
			events <- device.Event{Kind: device.ImageCaptured, Image: frame}
			events <- device.Event{Kind: device.FingerRemoved}
		}
		if failCode != 0 {
			events <- device.Event{Kind: device.OperationComplete, Code: failCode}
			return
		}
		events <- device.Event{Kind: device.OperationComplete, Success: true, Template: tmpl, Quality: 75}
	}()
	return nil
}

func (d *scriptedDevice) Verify(reference, probe []byte, opts device.VerifyOptions) (device.VerifyResult, error) {
	d.mu.Lock()
	d.verifyCalls++
	fn := d.verifyFn
	d.mu.Unlock()
	if fn != nil {
		return fn(reference, probe)
	}
	return device.VerifyResult{}, nil
}

func (d *scriptedDevice) starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startCalls
}

func (d *scriptedDevice) verifications() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.verifyCalls
}

// recordingNotifier captures the sequence of pushed event types.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(t string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, t)
}

func (n *recordingNotifier) NotifyStart(subject, operation string, totalSamples int) {
	n.record(EventOperationStarted)
}
func (n *recordingNotifier) NotifySampleStarted(subject string, sample, total int) {
	n.record(EventSampleStarted)
}
func (n *recordingNotifier) NotifySampleCaptured(subject string, sample, total int, image []byte, quality float64) {
	n.record(EventSampleCaptured)
}
func (n *recordingNotifier) NotifyFingerRemoved(subject string, sample, total int) {
	n.record(EventFingerRemoved)
}
func (n *recordingNotifier) NotifyComplete(subject, operation string, data map[string]interface{}) {
	n.record(EventOperationCompleted)
}
func (n *recordingNotifier) NotifyError(subject, code, message string) {
	n.record(EventOperationFailed)
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return ""
	}
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == eventType {
			c++
		}
	}
	return c
}

type fixture struct {
	svc      IFingerprintService
	dev      *scriptedDevice
	notifier *recordingNotifier
	store    *storage.Store
	root     string
}

func newFixture(t *testing.T, dev *scriptedDevice) *fixture {
	t.Helper()
	root := t.TempDir()

	var snap config.Snapshot
	defaults.SetDefaults(&snap)
	snap.TemplatePath = root
	snap.CapturePath = filepath.Join(root, "captures")
	snap.TimeoutMs = 5000

	cfgStore := config.NewStore(snap, filepath.Join(t.TempDir(), "settings.json"), logger.Nop())
	store := storage.NewStore(root, logger.Nop())

	manager := device.NewManager(dev, logger.Nop())
	manager.Initialize(1, 0, nil)

	notifier := &recordingNotifier{}
	return &fixture{
		svc:      NewFingerprintService(manager, store, cfgStore, notifier, logger.Nop()),
		dev:      dev,
		notifier: notifier,
		store:    store,
		root:     root,
	}
}

func testFrame() []byte {
	frame := make([]byte, 256)
	for i := range frame {
		frame[i] = byte(i * 7 % 256)
	}
	return frame
}

func TestRegisterThenVerify(t *testing.T) {
	tmpl := make([]byte, 64)
	for i := range tmpl {
		tmpl[i] = byte(i)
	}
	dev := &scriptedDevice{template: tmpl, frame: testFrame()}
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		return device.VerifyResult{Matched: true, Score: 12}, nil
	}
	f := newFixture(t, dev)

	res, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{
		RegistrationID: "alice",
		Finger:         "right_index",
	})
	require.NoError(t, err)
	// 64-byte template inside a 20-byte container header.
	assert.Equal(t, 84, res.TemplateSize)
	assert.Equal(t, 5, res.Samples)
	assert.Equal(t, 3, res.SelectedImages)
	assert.True(t, f.store.Exists("alice", "right_index"))
	assert.Equal(t, EventOperationCompleted, f.notifier.last())
	// Reposition guidance was pushed once per captured sample.
	assert.Equal(t, 5, f.notifier.count(EventFingerRemoved))

	// The stored container decodes back to the device template.
	raw, ok, err := f.store.LoadTemplate(res.TemplatePath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tmpl, raw)

	vres, err := f.svc.VerifySimple(context.Background(), dto.VerifyRequest{
		RegistrationID: "alice",
		Finger:         "right_index",
	})
	require.NoError(t, err)
	assert.True(t, vres.Matched)
	assert.Equal(t, 12, vres.Score)
	assert.Equal(t, 70, vres.Threshold)
	// The device reports quality 75 with the completed capture.
	assert.Equal(t, 75, vres.CaptureQuality)
	assert.Equal(t, f.store.TemplatePath("alice", "right_index"), vres.TemplatePath)
}

func TestRegisterDuplicateGuard(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	f := newFixture(t, dev)

	_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: "bob"})
	require.NoError(t, err)
	startsAfterFirst := f.dev.starts()

	_, err = f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: "bob"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindFileExists, apperr.KindOf(err))
	// The duplicate was rejected before the device was touched.
	assert.Equal(t, startsAfterFirst, f.dev.starts())
}

func TestRegisterOverwrite(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	f := newFixture(t, dev)

	_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: "carol"})
	require.NoError(t, err)

	yes := true
	_, err = f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{
		RegistrationID: "carol",
		Overwrite:      &yes,
	})
	assert.NoError(t, err)
}

func TestRegisterMissingID(t *testing.T) {
	f := newFixture(t, &scriptedDevice{template: []byte{1, 2}, frame: testFrame()})
	_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestRegisterDeviceFailure(t *testing.T) {
	dev := &scriptedDevice{failCode: 8, frame: testFrame()}
	f := newFixture(t, dev)

	_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: "dave"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindCaptureTimeout, apperr.KindOf(err))
	assert.Equal(t, EventOperationFailed, f.notifier.last())
}

func TestVerifyMissingTemplate(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2}, frame: testFrame()}
	f := newFixture(t, dev)

	_, err := f.svc.VerifySimple(context.Background(), dto.VerifyRequest{RegistrationID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindFileNotFound, apperr.KindOf(err))
	// The reference check failed before any capture started.
	assert.Equal(t, 0, f.dev.starts())
}

func TestVerifyCorruptTemplate(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2}, frame: testFrame()}
	f := newFixture(t, dev)

	// A 10-byte file is too short to carry a template.
	dir := filepath.Join(f.root, "mallory", "right_index")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mallory.tml"), make([]byte, 10), 0o644))

	_, err := f.svc.VerifySimple(context.Background(), dto.VerifyRequest{RegistrationID: "mallory"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTemplate, apperr.KindOf(err))
	assert.Equal(t, 0, f.dev.starts())
}

func TestVerifyComparisonFailureYieldsSentinel(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	f := newFixture(t, dev)

	_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: "erin"})
	require.NoError(t, err)

	dev.mu.Lock()
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		return device.VerifyResult{}, assert.AnError
	}
	dev.mu.Unlock()

	res, err := f.svc.VerifySimple(context.Background(), dto.VerifyRequest{RegistrationID: "erin"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 9999, res.Score)
	assert.Equal(t, 70, res.Threshold)
	assert.Equal(t, f.store.TemplatePath("erin", "right_index"), res.TemplatePath)
}

func TestIdentifyFirstWinsOnEqualScores(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		return device.VerifyResult{Matched: true, Score: 40}, nil
	}
	f := newFixture(t, dev)

	for _, id := range []string{"aaa", "bbb", "ccc"} {
		_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: id})
		require.NoError(t, err)
	}

	res, err := f.svc.IdentifyLive(context.Background(), dto.IdentifyRequest{})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 40, res.Score)
	assert.Equal(t, 0, res.MatchIndex)
	assert.Equal(t, "aaa", res.RegistrationID)
	assert.Equal(t, "right_index", res.Label)
	assert.Equal(t, f.store.TemplatePath("aaa", "right_index"), res.TemplatePath)
	assert.Equal(t, 70, res.Threshold)
	assert.Equal(t, 3, res.TotalCompared)
}

func TestIdentifyMatchAtSentinelScore(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	// The device's own threshold decision is authoritative even when the
	// score reaches the no-usable-score value.
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		return device.VerifyResult{Matched: true, Score: 9999}, nil
	}
	f := newFixture(t, dev)

	_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: "zed"})
	require.NoError(t, err)

	res, err := f.svc.IdentifyLive(context.Background(), dto.IdentifyRequest{})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 0, res.MatchIndex)
	assert.Equal(t, 9999, res.Score)
	assert.Equal(t, "zed", res.RegistrationID)
}

func TestIdentifyBestScoreWins(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	scores := map[string]int{"aaa": 80, "bbb": 15, "ccc": 40}
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		// Reference templates are distinct per subject; first byte selects.
		return device.VerifyResult{Matched: true, Score: int(reference[0])}, nil
	}
	f := newFixture(t, dev)

	for id, score := range scores {
		dev.mu.Lock()
		dev.template = []byte{byte(score), 0, 0, 0}
		dev.mu.Unlock()
		_, err := f.svc.RegisterMultiSample(context.Background(), dto.RegisterRequest{RegistrationID: id})
		require.NoError(t, err)
	}

	res, err := f.svc.IdentifyLive(context.Background(), dto.IdentifyRequest{})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 15, res.Score)
	assert.Equal(t, "bbb", res.RegistrationID)
}

func TestIdentifyMissingDir(t *testing.T) {
	f := newFixture(t, &scriptedDevice{template: []byte{1, 2}, frame: testFrame()})
	_, err := f.svc.IdentifyLive(context.Background(), dto.IdentifyRequest{
		SearchDir: filepath.Join(f.root, "nope"),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindFileNotFound, apperr.KindOf(err))
}

func TestIdentifyBoundedComparisons(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		return device.VerifyResult{Matched: false, Score: 9000}, nil
	}
	f := newFixture(t, dev)

	// 600 loose containers exceed the default 500-template search bound.
	dir := filepath.Join(f.root, "bulk")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	container := template.Encode([]byte{9, 9, 9, 9}, "bulk")
	for i := 0; i < 600; i++ {
		name := filepath.Join(dir, fmt.Sprintf("t%03d.tml", i))
		require.NoError(t, os.WriteFile(name, container, 0o644))
	}

	res, err := f.svc.IdentifyLive(context.Background(), dto.IdentifyRequest{SearchDir: dir})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, -1, res.MatchIndex)
	assert.Equal(t, 500, res.TotalCompared)
}

func TestIdentifyCountsUnreadableTemplates(t *testing.T) {
	dev := &scriptedDevice{template: []byte{1, 2, 3, 4}, frame: testFrame()}
	dev.verifyFn = func(reference, probe []byte) (device.VerifyResult, error) {
		return device.VerifyResult{Matched: false, Score: 9000}, nil
	}
	f := newFixture(t, dev)

	dir := filepath.Join(f.root, "mixed")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.tml"), template.Encode([]byte{1, 2, 3, 4}, ""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.tml"), make([]byte, 5), 0o644))

	res, err := f.svc.IdentifyLive(context.Background(), dto.IdentifyRequest{SearchDir: dir})
	require.NoError(t, err)
	// The unreadable container is skipped but still counted.
	assert.Equal(t, 2, res.TotalCompared)
	assert.Equal(t, 1, f.dev.verifications())
}

func TestCapture(t *testing.T) {
	dev := &scriptedDevice{template: []byte{5, 6, 7, 8}, frame: testFrame()}
	f := newFixture(t, dev)

	res, err := f.svc.Capture(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, res.TemplatePath)
	// 4-byte template plus the container header.
	assert.Equal(t, 24, res.TemplateSize)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &scriptedDevice{template: []byte{1, 2}, frame: testFrame()})
	res := f.svc.Health()
	assert.Equal(t, "healthy", res.Status)
	assert.True(t, res.DeviceConnected)
}
