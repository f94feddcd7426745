package session

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/model"
	sessionsvc "github.com/sahilchouksey/study-artifacts/services/session"
	"github.com/sahilchouksey/study-artifacts/utils/middleware"
	"github.com/sahilchouksey/study-artifacts/utils/response"
	"github.com/sahilchouksey/study-artifacts/utils/validation"
)

// Runner starts and cancels session runs
type Runner interface {
	Submit(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
}

// CancelNotifier tells other instances that a session was cancelled
type CancelNotifier func(ctx context.Context, sessionID string) error

// SessionHandler handles processing session requests
type SessionHandler struct {
	tracker   *sessionsvc.Tracker
	runner    Runner
	events    sessionsvc.Subscriber
	notify    CancelNotifier
	validator *validation.Validator
}

// NewSessionHandler creates a new session handler. events and notify may be nil.
func NewSessionHandler(tracker *sessionsvc.Tracker, runner Runner, events sessionsvc.Subscriber, notify CancelNotifier) *SessionHandler {
	return &SessionHandler{
		tracker:   tracker,
		runner:    runner,
		events:    events,
		notify:    notify,
		validator: validation.NewValidator(),
	}
}

// DocumentInput is one uploaded file of a new session
type DocumentInput struct {
	Kind         string `json:"kind" validate:"required,document_kind"`
	Filename     string `json:"filename" validate:"required,max=255"`
	SourceHandle string `json:"source_handle" validate:"required,source_handle"`
}

// CreateSessionRequest represents the request body for registering a session
type CreateSessionRequest struct {
	Mode      string          `json:"mode" validate:"required,processing_mode"`
	Documents []DocumentInput `json:"documents" validate:"required,min=1,max=20,dive"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationErrors(c, validation.FormatValidationErrors(err))
	}

	sess := &model.ProcessingSession{
		UserID:         userID,
		ProcessingMode: model.ProcessingMode(req.Mode),
	}
	for _, d := range req.Documents {
		sess.Documents = append(sess.Documents, model.Document{
			Kind:         model.DocumentKind(d.Kind),
			Filename:     validation.SanitizeString(d.Filename),
			SourceHandle: d.SourceHandle,
		})
	}

	if err := h.tracker.Register(c.UserContext(), sess); err != nil {
		log.Errorf("[SESSION] Failed to register session for user %d: %v", userID, err)
		return response.InternalServerError(c, "Failed to create session")
	}

	return response.Created(c, sessionsvc.BuildReport(sess))
}

// SubmitSession handles POST /api/v1/sessions/:id/submit
func (h *SessionHandler) SubmitSession(c *fiber.Ctx) error {
	sess, err := h.ownedSession(c)
	if sess == nil {
		return err
	}

	if err := h.runner.Submit(c.UserContext(), sess.ID); err != nil {
		switch {
		case errors.Is(err, sessionsvc.ErrConcurrentRunRejected):
			return response.Conflict(c, response.CodeConcurrentRun, "Session is already being processed")
		case errors.Is(err, sessionsvc.ErrInvalidTransition):
			return response.Conflict(c, response.CodeInvalidTransition, "Session can no longer be submitted")
		}
		log.Errorf("[SESSION] Failed to submit %s: %v", sess.ID, err)
		return response.InternalServerError(c, "Failed to start processing")
	}

	return response.Accepted(c, "Processing started", fiber.Map{
		"session_id": sess.ID,
		"status":     model.SessionStatusProcessing,
	})
}

// GetStatus handles GET /api/v1/sessions/:id/status
func (h *SessionHandler) GetStatus(c *fiber.Ctx) error {
	sess, err := h.ownedSession(c)
	if sess == nil {
		return err
	}
	return response.Success(c, sessionsvc.BuildReport(sess))
}

// CancelSession handles POST /api/v1/sessions/:id/cancel
func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	sess, err := h.ownedSession(c)
	if sess == nil {
		return err
	}

	if err := h.runner.Cancel(c.UserContext(), sess.ID); err != nil {
		if errors.Is(err, sessionsvc.ErrInvalidTransition) {
			return response.Conflict(c, response.CodeInvalidTransition, "Session has already finished")
		}
		log.Errorf("[SESSION] Failed to cancel %s: %v", sess.ID, err)
		return response.InternalServerError(c, "Failed to cancel session")
	}

	// the run may live on another instance
	if h.notify != nil {
		if err := h.notify(c.UserContext(), sess.ID); err != nil {
			log.Warnf("[SESSION] Failed to broadcast cancellation of %s: %v", sess.ID, err)
		}
	}

	return response.SuccessWithMessage(c, "Session cancelled", fiber.Map{
		"session_id": sess.ID,
		"status":     model.SessionStatusCancelled,
	})
}

// ownedSession loads the :id session of the authenticated user. When it
// returns nil the error response has been written and the returned error is
// the result of writing it.
func (h *SessionHandler) ownedSession(c *fiber.Ctx) (*model.ProcessingSession, error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return nil, response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")
	if id == "" {
		return nil, response.BadRequest(c, "Invalid session ID")
	}

	sess, err := h.tracker.Session(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			return nil, response.NotFound(c, "Session not found")
		}
		log.Errorf("[SESSION] Failed to load %s: %v", id, err)
		return nil, response.InternalServerError(c, "Failed to fetch session")
	}

	// other users' sessions are reported as missing
	if sess.UserID != userID && !middleware.IsAdmin(c) {
		return nil, response.NotFound(c, "Session not found")
	}
	return sess, nil
}
