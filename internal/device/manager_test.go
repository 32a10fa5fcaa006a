package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"fingerprint-be/internal/apperr"
	"fingerprint-be/internal/pkg/logger"
)

// fakeDevice scripts a session: every event in script is sent in order when
// StartEnroll runs, after an optional delay.
type fakeDevice struct {
	initErr      error
	initPanics   bool
	initCalls    int
	script       []Event
	scriptDelay  time.Duration
	verifyResult VerifyResult
	verifyErr    error
	verifyPanics bool
	verifyCalls  int
}

func (f *fakeDevice) Init() error {
	f.initCalls++
	if f.initPanics {
		panic("native access violation")
	}
	return f.initErr
}

func (f *fakeDevice) StartEnroll(opts EnrollOptions, events chan<- Event) error {
	script := f.script
	delay := f.scriptDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		for _, ev := range script {
			events <- ev
		}
	}()
	return nil
}

func (f *fakeDevice) Verify(reference, probe []byte, opts VerifyOptions) (VerifyResult, error) {
	f.verifyCalls++
	if f.verifyPanics {
		panic("matcher fault")
	}
	return f.verifyResult, f.verifyErr
}

func (f *fakeDevice) Close() error { return nil }

func newTestManager(dev Device) *Manager {
	m := NewManager(dev, logger.Nop())
	m.Initialize(1, 0, nil)
	return m
}

func TestInitializeRetries(t *testing.T) {
	dev := &fakeDevice{initErr: errors.New("no device")}
	m := NewManager(dev, logger.Nop())
	m.Initialize(3, 0, nil)

	if dev.initCalls != 3 {
		t.Errorf("init attempts = %d, want 3", dev.initCalls)
	}
	if m.Connected() {
		t.Error("Connected() = true after failed init")
	}
	if m.LastError() == "" {
		t.Error("LastError() empty after failed init")
	}
}

func TestInitializeRecoversFromPanic(t *testing.T) {
	dev := &fakeDevice{initPanics: true}
	m := NewManager(dev, logger.Nop())
	m.Initialize(2, 0, nil)

	if m.Connected() {
		t.Error("Connected() = true after panicking init")
	}
	if m.LastError() == "" {
		t.Error("LastError() empty, want severe fault description")
	}
}

func TestEnrollEventFlow(t *testing.T) {
	dev := &fakeDevice{script: []Event{
		{Kind: FingerPlaced},
		{Kind: ImageCaptured, Image: []byte{1, 2, 3}},
		{Kind: FingerRemoved},
		{Kind: OperationComplete, Success: true, Template: []byte{9, 9}, Quality: 77},
	}}
	m := newTestManager(dev)

	var kinds []EventKind
	outcome, err := m.Enroll(context.Background(), EnrollOptions{SampleCount: 1}, time.Second, func(ev Event) {
		kinds = append(kinds, ev.Kind)
	})
	if err != nil {
		t.Fatalf("Enroll error: %v", err)
	}
	if !outcome.Success || outcome.Quality != 77 || len(outcome.Template) != 2 {
		t.Errorf("outcome = %+v, want success with quality 77 and 2-byte template", outcome)
	}

	want := []EventKind{FingerPlaced, ImageCaptured, FingerRemoved}
	if len(kinds) != len(want) {
		t.Fatalf("observed %d progress events, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestEnrollTimeoutReleasesLock(t *testing.T) {
	// Completion arrives long after the timeout fires.
	dev := &fakeDevice{
		script:      []Event{{Kind: OperationComplete, Success: true}},
		scriptDelay: 500 * time.Millisecond,
	}
	m := newTestManager(dev)

	start := time.Now()
	outcome, err := m.Enroll(context.Background(), EnrollOptions{SampleCount: 1}, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Enroll error: %v", err)
	}
	if !outcome.TimedOut {
		t.Fatal("outcome.TimedOut = false, want true")
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("timed-out session took %s, want well under the script delay", elapsed)
	}

	// The lock must be free for the next session; the stale completion from
	// the first session must not leak into it.
	dev.script = []Event{{Kind: OperationComplete, Success: true, Quality: 42}}
	dev.scriptDelay = 0
	outcome, err = m.Enroll(context.Background(), EnrollOptions{SampleCount: 1}, time.Second, nil)
	if err != nil {
		t.Fatalf("second Enroll error: %v", err)
	}
	if !outcome.Success || outcome.Quality != 42 {
		t.Errorf("second outcome = %+v, want fresh success with quality 42", outcome)
	}
}

func TestEnrollWhenNotConnected(t *testing.T) {
	dev := &fakeDevice{initErr: errors.New("no device")}
	m := NewManager(dev, logger.Nop())
	m.Initialize(1, 0, nil)

	_, err := m.Enroll(context.Background(), EnrollOptions{}, time.Second, nil)
	if apperr.KindOf(err) != apperr.KindDeviceNotConnected {
		t.Errorf("error kind = %s, want %s", apperr.KindOf(err), apperr.KindDeviceNotConnected)
	}
}

func TestEnrollContextCancellation(t *testing.T) {
	dev := &fakeDevice{scriptDelay: time.Second}
	m := newTestManager(dev)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := m.Enroll(ctx, EnrollOptions{}, time.Minute, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Enroll error = %v, want context.Canceled", err)
	}
}

func TestVerifyPanicBecomesComparisonFailure(t *testing.T) {
	dev := &fakeDevice{verifyPanics: true}
	m := newTestManager(dev)

	_, err := m.Verify([]byte{1}, []byte{2}, VerifyOptions{})
	if apperr.KindOf(err) != apperr.KindComparisonFailed {
		t.Errorf("error kind = %s, want %s", apperr.KindOf(err), apperr.KindComparisonFailed)
	}

	// Manager must still be usable afterwards.
	dev.verifyPanics = false
	dev.verifyResult = VerifyResult{Matched: true, Score: 10}
	res, err := m.Verify([]byte{1}, []byte{2}, VerifyOptions{})
	if err != nil || !res.Matched {
		t.Errorf("Verify after recovered panic = %+v, %v; want match", res, err)
	}
}

func TestVerifyErrorWrapped(t *testing.T) {
	dev := &fakeDevice{verifyErr: errors.New("boom")}
	m := newTestManager(dev)

	_, err := m.Verify([]byte{1}, []byte{2}, VerifyOptions{})
	if apperr.KindOf(err) != apperr.KindComparisonFailed {
		t.Errorf("error kind = %s, want %s", apperr.KindOf(err), apperr.KindComparisonFailed)
	}
}
