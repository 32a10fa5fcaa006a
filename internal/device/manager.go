package device

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"fingerprint-be/internal/apperr"
	"fingerprint-be/internal/pkg/logger"
)

// eventBuffer must always leave room for the final OperationComplete even if
// the consumer stopped reading after a timeout.
const eventBuffer = 64

// EnrollOutcome is the resolved result of one capture/enroll session.
type EnrollOutcome struct {
	Success  bool
	TimedOut bool
	Code     int
	Template []byte
	Quality  int
}

// Manager wraps a Device with the invariants the orchestrators rely on:
// a device-wide mutual-exclusion lock (one hardware session in flight
// system-wide), an initialization retry loop that survives severe native
// faults, connectivity state tracking, and a hard wait timeout that leaves
// the lock in a safe state for the next caller.
type Manager struct {
	// mu also guards connected and lastErr: initialization and health checks
	// run under the same exclusivity domain as sessions.
	mu        sync.Mutex
	dev       Device
	log       logger.ILogger
	connected bool
	lastErr   string
	startedAt time.Time
}

func NewManager(dev Device, log logger.ILogger) *Manager {
	return &Manager{
		dev:       dev,
		log:       log,
		startedAt: time.Now(),
	}
}

// Initialize verifies native libraries, then attempts backend init up to
// retries times with a fixed delay. A panic out of the backend (the moral
// equivalent of a native access fault) is caught here and recorded as
// "device not connected" instead of crashing the process; this is the only
// place such faults are tolerated.
func (m *Manager) Initialize(retries int, delay time.Duration, nativeLibs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.log.Info("Device", "Initializing fingerprint device", map[string]interface{}{"retries": retries})

	for _, lib := range nativeLibs {
		if info, err := os.Stat(lib); err != nil {
			m.log.Warn("Device", "Native library not found", map[string]interface{}{"path": lib})
		} else {
			m.log.Info("Device", "Native library present", map[string]interface{}{"path": lib, "bytes": info.Size()})
		}
	}

	for attempt := 1; attempt <= retries; attempt++ {
		err := m.tryInit()
		if err == nil {
			m.connected = true
			m.lastErr = ""
			m.log.Info("Device", "Device initialized", map[string]interface{}{"attempt": attempt})
			return
		}
		m.lastErr = err.Error()
		m.log.Error("Device", "Device initialization attempt failed", map[string]interface{}{
			"attempt": attempt, "error": err.Error(),
		})
		if attempt < retries {
			time.Sleep(delay)
		}
	}
	m.log.Error("Device", "Device initialization failed, device marked not connected", map[string]interface{}{
		"lastError": m.lastErr,
	})
}

func (m *Manager) tryInit() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("severe fault during device initialization: %v", r)
		}
	}()
	return m.dev.Init()
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// Enroll runs one capture/enroll session to completion. Every event except
// the final OperationComplete is handed to onEvent in arrival order on the
// calling goroutine (the single state-machine loop). The timeout is a hard
// upper bound on waiting, not a cancellation of the backend operation: on
// expiry the session is abandoned and any stray late completion is ignored,
// which is safe because event sends are non-blocking and the channel is
// local to this call.
func (m *Manager) Enroll(ctx context.Context, opts EnrollOptions, timeout time.Duration, onEvent func(Event)) (*EnrollOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, apperr.New(apperr.KindDeviceNotConnected, "device not connected or SDK not initialized")
	}

	sessionID := uuid.NewString()
	m.log.Info("Device", "Session started", map[string]interface{}{
		"session": sessionID, "samples": opts.SampleCount,
	})

	events := make(chan Event, eventBuffer)
	if err := m.dev.StartEnroll(opts, events); err != nil {
		m.lastErr = err.Error()
		return nil, apperr.Newf(apperr.KindCaptureFailed, "failed to start capture: %v", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-events:
			if ev.Kind == OperationComplete {
				return &EnrollOutcome{
					Success:  ev.Success,
					Code:     ev.Code,
					Template: ev.Template,
					Quality:  ev.Quality,
				}, nil
			}
			if onEvent != nil {
				onEvent(ev)
			}
		case <-timer.C:
			m.log.Warn("Device", "Session wait timed out", map[string]interface{}{
				"session": sessionID, "timeoutMs": timeout.Milliseconds(),
			})
			return &EnrollOutcome{TimedOut: true}, nil
		case <-ctx.Done():
			// Cancellation only means "stop waiting"; the backend operation
			// is not aborted.
			return nil, ctx.Err()
		}
	}
}

// Capture is a single-sample enrollment; the device has no separate capture
// primitive.
func (m *Manager) Capture(ctx context.Context, opts EnrollOptions, timeout time.Duration, onEvent func(Event)) (*EnrollOutcome, error) {
	opts.SampleCount = 1
	return m.Enroll(ctx, opts, timeout, onEvent)
}

// Verify compares two templates under the device lock. Backend panics and
// errors both collapse to a COMPARISON_FAILED taxonomy error; the caller
// substitutes the 9999 no-usable-score sentinel.
func (m *Manager) Verify(reference, probe []byte, opts VerifyOptions) (res VerifyResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return VerifyResult{}, apperr.New(apperr.KindDeviceNotConnected, "device not connected or SDK not initialized")
	}

	defer func() {
		if r := recover(); r != nil {
			res = VerifyResult{}
			err = apperr.Newf(apperr.KindComparisonFailed, "severe fault during verification: %v", r)
		}
	}()

	res, err = m.dev.Verify(reference, probe, opts)
	if err != nil {
		return VerifyResult{}, apperr.Newf(apperr.KindComparisonFailed, "verification failed: %v", err)
	}
	return res, nil
}
