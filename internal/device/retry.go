package device

// Class buckets a backend result code for retry decisions. The service layer
// never auto-retries inside a single call; retry loops are a CLI-level
// concern built on this classification.
type Class int

const (
	// ClassRetryable codes (low quality, finger removed too fast, operation
	// timeout) are worth another immediate attempt.
	ClassRetryable Class = iota
	// ClassFatal codes indicate the device is gone; retrying cannot help.
	ClassFatal
	// ClassUnknown codes are surfaced as generic failures with the raw code
	// attached for diagnostics.
	ClassUnknown
)

// Classify maps a raw backend result code to its retry class.
func Classify(code int) Class {
	switch code {
	case 4, 11, 203:
		return ClassRetryable
	case 1, 2, 3, 5, 6, 100, 101, 102, 103, 202:
		return ClassFatal
	default:
		return ClassUnknown
	}
}
