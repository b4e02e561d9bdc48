package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"apkrelay/internal/apperr"
	"apkrelay/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func requestIDFromCtx(c *fiber.Ctx) string {
	if s, ok := c.Locals(middleware.RequestIDLocalKey).(string); ok {
		return s
	}
	return ""
}

// writeError writes a standardized JSON error response.
// code is machine-readable (INVALID_ID, NOT_FOUND, ...); message must be safe to show.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: requestIDFromCtx(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// writeAppError maps an apperr kind to its HTTP status and code.
// Internal errors never expose their message.
func writeAppError(c *fiber.Ctx, err error) error {
	msg := apperr.Message(err)
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", msg)
	case apperr.KindNotFound:
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", msg)
	case apperr.KindConfiguration:
		return writeError(c, fiber.StatusInternalServerError, "CONFIGURATION_ERROR", msg)
	case apperr.KindUpstreamFetch:
		return writeError(c, fiber.StatusBadGateway, "UPSTREAM_FETCH_ERROR", msg)
	case apperr.KindUpstreamTransfer:
		return writeError(c, fiber.StatusBadGateway, "UPSTREAM_TRANSFER_ERROR", msg)
	case apperr.KindStore:
		return writeError(c, fiber.StatusInternalServerError, "STORE_ERROR", "history store unavailable")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if !errors.As(err, &fe) {
			return writeAppError(c, err)
		}

		switch fe.Code {
		case fiber.StatusBadRequest:
			return writeError(c, fe.Code, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, fe.Code, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, fe.Code, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, fe.Code, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, fe.Code, "INTERNAL_ERROR", "internal server error")
		}
	}
}
