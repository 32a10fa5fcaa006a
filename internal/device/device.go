// Package device defines the capability seam between the orchestration core
// and a fingerprint scanner backend. Backends implement the narrow Device
// interface with explicit parameters; progress is delivered as typed events
// on a channel consumed by a single session loop, never as shared mutable
// counters inside callbacks.
package device

// EventKind identifies a progress checkpoint during a capture/enroll
// session.
type EventKind int

const (
	// FingerPlaced fires when a finger lands on the sensor for the next
	// sample.
	FingerPlaced EventKind = iota
	// FingerRemoved fires when the finger leaves the sensor after a sample.
	FingerRemoved
	// AmbiguousSource fires when the backend cannot decide whether the
	// signal is a live finger. The consumer must answer on Reply; true means
	// continue despite the ambiguity.
	AmbiguousSource
	// ImageCaptured delivers one raw frame of the sample being captured.
	ImageCaptured
	// OperationComplete is the single synchronization point of a session:
	// it carries the final outcome and is always the last event sent.
	OperationComplete
)

// Event is one message on a session's progress channel. Backends must send
// events without blocking (dropping a progress event is acceptable, dropping
// OperationComplete is not — the channel must be buffered deep enough that
// the final event always fits).
type Event struct {
	Kind     EventKind
	Image    []byte      // ImageCaptured
	Reply    chan<- bool // AmbiguousSource
	Success  bool        // OperationComplete
	Code     int         // OperationComplete: raw backend result code
	Template []byte      // OperationComplete: raw template on success
	Quality  int         // OperationComplete: backend-reported quality
}

// EnrollOptions configures one capture/enroll session. A plain capture is an
// enrollment with SampleCount 1.
type EnrollOptions struct {
	SampleCount      int
	MatchThreshold   int
	MaxRotation      int
	MaxFrames        int
	FastMode         bool
	DetectFakeFinger bool
}

// VerifyOptions configures a 1:1 template comparison.
type VerifyOptions struct {
	MatchThreshold int
	MaxRotation    int
	FastMode       bool
}

// VerifyResult is the backend's matching decision. Score follows the
// FAR-style convention: lower values indicate stronger matches. Matched
// reflects the backend's own threshold comparison; callers never re-derive
// it from Score.
type VerifyResult struct {
	Matched bool
	Score   int
}

// Device is a scanner backend. Implementations are not required to be safe
// for concurrent use; the Manager serializes all access.
type Device interface {
	// Init prepares the backend. It is retried by the Manager and may be
	// called again after a failure.
	Init() error

	// StartEnroll begins an asynchronous session that emits progress events
	// on the given channel, ending with exactly one OperationComplete.
	StartEnroll(opts EnrollOptions, events chan<- Event) error

	// Verify compares a captured template against a reference template.
	Verify(reference, probe []byte, opts VerifyOptions) (VerifyResult, error)

	// Close releases backend resources.
	Close() error
}
