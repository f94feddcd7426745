// Package response renders the JSON envelope shared by every endpoint:
// {"success": bool, "message": ..., "data": ..., "error": {"code", "message"}}
package response

import (
	"github.com/gofiber/fiber/v2"
)

// Machine-readable error codes
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeConcurrentRun      = "CONCURRENT_RUN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeHTTP               = "HTTP_ERROR"
)

type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(Response{Success: true, Message: message, Data: data})
}

func Success(c *fiber.Ctx, data interface{}) error {
	return ok(c, fiber.StatusOK, "", data)
}

func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return ok(c, fiber.StatusOK, message, data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return ok(c, fiber.StatusCreated, "Resource created successfully", data)
}

// Accepted acknowledges work that continues in the background
func Accepted(c *fiber.Ctx, message string, data interface{}) error {
	return ok(c, fiber.StatusAccepted, message, data)
}

// Error writes a failure envelope
func Error(c *fiber.Ctx, statusCode int, message string, code string) error {
	return c.Status(statusCode).JSON(Response{
		Error: &ErrorDetail{Code: code, Message: message},
	})
}

// fail is Error with a default message for callers that pass ""
func fail(c *fiber.Ctx, status int, code, message, fallback string) error {
	if message == "" {
		message = fallback
	}
	return Error(c, status, message, code)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, CodeBadRequest, message, "Bad request")
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusUnauthorized, CodeUnauthorized, message, "Unauthorized access")
}

func NotFound(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusNotFound, CodeNotFound, message, "Resource not found")
}

// Conflict reports a request that clashes with the session's current state
func Conflict(c *fiber.Ctx, code, message string) error {
	return fail(c, fiber.StatusConflict, code, message, "Conflict")
}

func TooManyRequests(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusTooManyRequests, CodeTooManyRequests, message, "Too many requests")
}

// ValidationErrors returns 422 with the offending fields under data
func ValidationErrors(c *fiber.Ctx, fields map[string]string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(Response{
		Data:  fields,
		Error: &ErrorDetail{Code: CodeValidation, Message: "Validation failed"},
	})
}

func InternalServerError(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusInternalServerError, CodeInternal, message, "Internal server error")
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusServiceUnavailable, CodeServiceUnavailable, message, "Service temporarily unavailable")
}
