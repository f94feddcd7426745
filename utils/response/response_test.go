package response

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, h fiber.Handler) (int, Response) {
	t.Helper()
	app := fiber.New()
	app.Get("/", h)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestConflict(t *testing.T) {
	status, body := render(t, func(c *fiber.Ctx) error {
		return Conflict(c, CodeConcurrentRun, "Session is already being processed")
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, CodeConcurrentRun, body.Error.Code)
}

func TestDefaultMessages(t *testing.T) {
	status, body := render(t, func(c *fiber.Ctx) error { return NotFound(c, "") })
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Resource not found", body.Error.Message)
}

func TestValidationErrors(t *testing.T) {
	status, body := render(t, func(c *fiber.Ctx) error {
		return ValidationErrors(c, map[string]string{"mode": "mode is required"})
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, CodeValidation, body.Error.Code)
	assert.Equal(t, map[string]interface{}{"mode": "mode is required"}, body.Data)
}

func TestAccepted(t *testing.T) {
	status, body := render(t, func(c *fiber.Ctx) error {
		return Accepted(c, "Processing started", fiber.Map{"session_id": "abc"})
	})
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
	assert.Equal(t, "Processing started", body.Message)
}
