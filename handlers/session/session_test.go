package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/study-artifacts/model"
	sessionsvc "github.com/sahilchouksey/study-artifacts/services/session"
)

// trackerRunner starts runs without doing any work so sessions stay PROCESSING
type trackerRunner struct {
	tracker *sessionsvc.Tracker
}

func (r trackerRunner) Submit(ctx context.Context, id string) error {
	_, err := r.tracker.Begin(context.WithoutCancel(ctx), id)
	return err
}

func (r trackerRunner) Cancel(ctx context.Context, id string) error {
	return r.tracker.Cancel(ctx, id)
}

type harness struct {
	app      *fiber.App
	tracker  *sessionsvc.Tracker
	broker   *sessionsvc.MemoryBroker
	mu       sync.Mutex
	notified []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{broker: sessionsvc.NewMemoryBroker()}
	h.tracker = sessionsvc.NewTracker(sessionsvc.NewMemoryStore(), h.broker)

	notify := func(_ context.Context, id string) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.notified = append(h.notified, id)
		return nil
	}
	handler := NewSessionHandler(h.tracker, trackerRunner{h.tracker}, h.broker, notify)

	h.app = fiber.New()
	// X-User stands in for the JWT middleware
	fakeAuth := func(c *fiber.Ctx) error {
		if id, err := strconv.Atoi(c.Get("X-User")); err == nil {
			c.Locals("user_id", uint(id))
		}
		return c.Next()
	}
	api := h.app.Group("/api/v1/sessions", fakeAuth)
	api.Post("/", handler.CreateSession)
	api.Post("/:id/submit", handler.SubmitSession)
	api.Get("/:id/status", handler.GetStatus)
	api.Post("/:id/cancel", handler.CancelSession)
	api.Get("/:id/events", handler.StreamEvents)
	return h
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

func (h *harness) create(t *testing.T, user string) string {
	t.Helper()
	code, env := h.do(t, http.MethodPost, "/api/v1/sessions/", user, fiber.Map{
		"mode": "hybrid",
		"documents": []fiber.Map{
			{"kind": "pdf", "filename": "lecture.pdf", "source_handle": "u1/lecture.pdf"},
		},
	})
	require.Equal(t, fiber.StatusCreated, code)

	var report sessionsvc.StatusReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.NotEmpty(t, report.SessionID)
	assert.Equal(t, model.SessionStatusPending, report.Status)
	return report.SessionID
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t)
	h.create(t, "1")

	code, _ := h.do(t, http.MethodPost, "/api/v1/sessions/", "", fiber.Map{"mode": "hybrid"})
	assert.Equal(t, fiber.StatusUnauthorized, code)

	code, env := h.do(t, http.MethodPost, "/api/v1/sessions/", "1", fiber.Map{
		"mode":      "turbo",
		"documents": []fiber.Map{{"kind": "docx", "filename": "a", "source_handle": "../x"}},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, _ = h.do(t, http.MethodPost, "/api/v1/sessions/", "1", fiber.Map{"mode": "hybrid", "documents": []fiber.Map{}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
}

func TestSubmitSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")

	code, _ := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", "1", nil)
	assert.Equal(t, fiber.StatusAccepted, code)

	code, env := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", "1", nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "CONCURRENT_RUN", env.Error.Code)

	_, err := h.tracker.Finish(context.Background(), id, model.SessionStatusCompleted)
	require.NoError(t, err)

	code, env = h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", "1", nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestGetStatus_ScopedToOwner(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")

	code, env := h.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/status", "1", nil)
	require.Equal(t, fiber.StatusOK, code)
	var report sessionsvc.StatusReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, model.ProcessingModeHybrid, report.Mode)
	require.Len(t, report.Documents, 1)
	assert.Equal(t, "lecture.pdf", report.Documents[0].Filename)

	code, _ = h.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/status", "2", nil)
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = h.do(t, http.MethodGet, "/api/v1/sessions/nope/status", "1", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestCancelSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")

	code, _ := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", "1", nil)
	require.Equal(t, fiber.StatusAccepted, code)

	code, _ = h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", "1", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, []string{id}, h.notified)

	got, err := h.tracker.Session(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, got.Status)

	// cancelling again is a no-op
	code, _ = h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", "1", nil)
	assert.Equal(t, fiber.StatusOK, code)
}

func TestCancelSession_Finished(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")
	_, err := h.tracker.Begin(context.Background(), id)
	require.NoError(t, err)
	_, err = h.tracker.Finish(context.Background(), id, model.SessionStatusPartial)
	require.NoError(t, err)

	code, env := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", "1", nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	assert.Empty(t, h.notified)
}

func TestStreamEvents_TerminalSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")
	_, err := h.tracker.Begin(context.Background(), id)
	require.NoError(t, err)
	_, err = h.tracker.Finish(context.Background(), id, model.SessionStatusCompleted)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/events", nil)
	req.Header.Set("X-User", "1")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: complete\n")
	assert.Contains(t, string(body), `"status":"completed"`)
}

func (h *harness) stream(t *testing.T, id string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/events", nil)
	req.Header.Set("X-User", "1")
	resp, err := h.app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestStreamEvents_LastEventTerminal(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")
	_, err := h.tracker.Begin(context.Background(), id)
	require.NoError(t, err)

	// another instance finished the run; the stored session still says PROCESSING
	require.NoError(t, h.broker.Publish(context.Background(), model.ProgressEvent{
		Type:      model.EventComplete,
		SessionID: id,
		Progress:  100,
		Status:    model.SessionStatusCompleted,
	}))

	body := h.stream(t, id)
	assert.Equal(t, 1, strings.Count(body, "event: complete\n"))
	assert.Contains(t, body, `"status":"completed"`)
}

func TestStreamEvents_Live(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "1")
	_, err := h.tracker.Begin(context.Background(), id)
	require.NoError(t, err)

	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for h.broker.Subscribers(id) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		ctx := context.Background()
		_ = h.broker.Publish(ctx, model.ProgressEvent{
			Type:      model.EventProgress,
			SessionID: id,
			Progress:  40,
			Phase:     "generating",
			Status:    model.SessionStatusProcessing,
		})
		_, _ = h.tracker.Finish(ctx, id, model.SessionStatusPartial)
	}()

	body := h.stream(t, id)
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `"progress":40`)
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"status":"partial"`)
	assert.Less(t, strings.Index(body, `"progress":40`), strings.Index(body, `"status":"partial"`))
}
