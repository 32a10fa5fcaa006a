package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"fingerprint-be/internal/apperr"
)

// statusForKind maps the error taxonomy onto HTTP status codes. Anything the
// map does not know is a 500.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindDeviceNotConnected:
		return fiber.StatusServiceUnavailable
	case apperr.KindCaptureTimeout:
		return fiber.StatusRequestTimeout
	case apperr.KindFileNotFound:
		return fiber.StatusNotFound
	case apperr.KindInvalidInput, apperr.KindInvalidTemplate, apperr.KindFileExists:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns errors returned by handlers into the JSON
// envelope, keeping status selection out of the controllers.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return ctx.Status(statusForKind(appErr.Kind)).
				JSON(ErrorResponse(string(appErr.Kind), appErr.Message))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).
				JSON(ErrorResponse(string(apperr.KindInternal), fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).
			JSON(ErrorResponse(string(apperr.KindInternal), err.Error()))
	}
}
