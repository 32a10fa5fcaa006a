// Package apperr defines the canonical error taxonomy of the fingerprint
// service. Device SDK numeric codes are translated into these kinds exactly
// once, at the boundary between the device layer and the orchestrators;
// everything above works with kinds only.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDeviceNotConnected Kind = "DEVICE_NOT_CONNECTED"
	KindCaptureTimeout     Kind = "CAPTURE_TIMEOUT"
	KindCaptureFailed      Kind = "CAPTURE_FAILED"
	KindQualityTooLow      Kind = "QUALITY_TOO_LOW"
	KindFileNotFound       Kind = "FILE_NOT_FOUND"
	KindInvalidTemplate    Kind = "INVALID_TEMPLATE"
	KindFileExists         Kind = "FILE_EXISTS"
	KindComparisonFailed   Kind = "COMPARISON_FAILED"
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// Error carries a taxonomy kind, a human-readable message and, when the
// failure originated in the device layer, the raw SDK result code for
// diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (device code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind from err. Unexpected errors collapse to
// INTERNAL_ERROR rather than leaking raw failures upward.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FromSDKCode translates a raw device result code into a taxonomy error.
// The bucket table mirrors the scanner SDK documentation (ftrScanAPI.h).
func FromSDKCode(code int) *Error {
	kind := classifyCode(code)
	return &Error{Kind: kind, Message: SDKMessage(code), Code: code}
}

func classifyCode(code int) Kind {
	switch code {
	case 1, 2, 3, 4, 5, 6, 202:
		return KindDeviceNotConnected
	case 8:
		return KindCaptureTimeout
	case 10, 11, 12, 13, 14, 15, 23:
		return KindQualityTooLow
	case 20, 21, 22, 203:
		return KindCaptureFailed
	case 40, 41:
		return KindInvalidTemplate
	case 42:
		return KindComparisonFailed
	case 60, 61, 62:
		return KindInternal
	case 80, 81, 82:
		return KindInvalidInput
	case 100, 101, 102, 103:
		return KindDeviceNotConnected
	default:
		return KindCaptureFailed
	}
}

// SDKMessage returns an operator-facing description of a device result code.
func SDKMessage(code int) string {
	switch code {
	case 0:
		return "operation successful"
	case 1:
		return "failed to open the device, check the USB connection"
	case 2:
		return "device not connected or disconnected during the operation"
	case 3:
		return "communication error with the device"
	case 4:
		return "failed to read from the device"
	case 5:
		return "failed to write to the device"
	case 6:
		return "device is busy with another operation"
	case 8:
		return "timeout: no finger detected within the time limit"
	case 10:
		return "image quality too low, clean the sensor and retry"
	case 11:
		return "image too dark, press the finger more firmly"
	case 12:
		return "image too light, press the finger with less force"
	case 13:
		return "fingerprint damaged or unreadable, try another finger"
	case 14:
		return "insufficient fingerprint area, cover the full sensor"
	case 15:
		return "fingerprint out of focus, keep the finger still"
	case 20:
		return "enrollment error: inconsistent samples, use the same finger"
	case 21:
		return "enrollment error: could not capture enough samples"
	case 22:
		return "enrollment error: captured samples do not match each other"
	case 23:
		return "enrollment error: insufficient sample quality"
	case 40:
		return "verification error: reference template invalid or corrupt"
	case 41:
		return "verification error: fingerprints could not be compared"
	case 42:
		return "fingerprints do not match (below the security threshold)"
	case 60, 61, 62:
		return "device memory error"
	case 80:
		return "invalid parameter in the operation"
	case 81:
		return "threshold value out of the valid range"
	case 82:
		return "invalid device configuration"
	case 100:
		return "SDK not initialized correctly, reinstall the drivers"
	case 101:
		return "incompatible SDK version"
	case 102:
		return "SDK license error"
	case 103:
		return "SDK shared library not found"
	case 202:
		return "capture error: device not connected or not responding"
	case 203:
		return "finger removed too quickly, keep it still until told"
	default:
		return fmt.Sprintf("device error (code %d), check the service logs", code)
	}
}
