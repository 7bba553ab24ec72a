package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"bookintake/internal/http/middleware"
	"bookintake/internal/normalize"
	"bookintake/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	Success   bool              `json:"success"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	RequestID string            `json:"requestId,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "VALIDATION_FAILED", "UPLOAD_FAILED")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeFieldErrors(c, status, code, message, nil)
}

// writeFieldErrors is writeError with per-field messages.
func writeFieldErrors(c *fiber.Ctx, status int, code, message string, fields map[string]string) error {
	return c.Status(status).JSON(errorPayload{
		Success:   false,
		Code:      code,
		Message:   message,
		RequestID: requestIDFromCtx(c),
		Errors:    fields,
	})
}

// writeServiceError maps the submission error taxonomy onto HTTP statuses.
// Only service.Error.Message reaches the client.
func writeServiceError(c *fiber.Ctx, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	switch se.Kind {
	case service.KindValidation:
		if errors.Is(se, normalize.ErrTooLarge) {
			return writeFieldErrors(c, fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", se.Message, se.Fields)
		}
		return writeFieldErrors(c, fiber.StatusBadRequest, "VALIDATION_FAILED", se.Message, se.Fields)
	case service.KindConfiguration:
		return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_NOT_CONFIGURED", se.Message)
	case service.KindUpload:
		return writeError(c, fiber.StatusBadGateway, "UPLOAD_FAILED", se.Message)
	default:
		return writeError(c, fiber.StatusInternalServerError, "PERSISTENCE_FAILED", se.Message)
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body is too large")
		case fiber.StatusTooManyRequests:
			return writeError(c, status, "RATE_LIMITED", "too many submissions, please wait a moment")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
