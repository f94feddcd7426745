// Package session owns the processing session lifecycle:
//
//	PENDING -> PROCESSING -> COMPLETED | PARTIALLY_COMPLETED | FAILED
//	PENDING | PROCESSING -> CANCELLED
//
// Every status write for a session goes through the Tracker, which holds a
// per-session lock, and through the store's conditional update, which keeps
// at most one active run per session across processes.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/sahilchouksey/study-artifacts/model"
)

// Tracker is the single writer of session state
type Tracker struct {
	store  Store
	events Publisher
	locks  *keyedMutex

	mu   sync.Mutex
	runs map[string]*activeRun
}

type activeRun struct {
	cancel    context.CancelFunc
	cancelled bool
}

// NewTracker creates a tracker. events may be nil.
func NewTracker(store Store, events Publisher) *Tracker {
	return &Tracker{
		store:  store,
		events: events,
		locks:  newKeyedMutex(),
		runs:   make(map[string]*activeRun),
	}
}

// Register creates a PENDING session with its documents, assigning ids and
// positions where missing
func (t *Tracker) Register(ctx context.Context, s *model.ProcessingSession) error {
	if !s.ProcessingMode.Valid() {
		return fmt.Errorf("unknown processing mode %q", s.ProcessingMode)
	}
	if len(s.Documents) == 0 {
		return fmt.Errorf("session has no documents")
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = model.SessionStatusPending
	for i := range s.Documents {
		d := &s.Documents[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		d.SessionID = s.ID
		d.Position = i
		d.ExtractionStatus = model.ExtractionStatusPending
	}
	return t.store.CreateSession(ctx, s)
}

// Session loads a session with its documents and outcomes
func (t *Tracker) Session(ctx context.Context, sessionID string) (*model.ProcessingSession, error) {
	return t.store.GetSession(ctx, sessionID)
}

// Begin moves a PENDING session to PROCESSING and returns the run context,
// which is cancelled by Cancel. A session already PROCESSING is rejected with
// ErrConcurrentRunRejected; a terminal one with ErrInvalidTransition.
func (t *Tracker) Begin(ctx context.Context, sessionID string) (context.Context, error) {
	unlock := t.locks.Lock(sessionID)
	defer unlock()

	ok, err := t.store.UpdateStatus(ctx, sessionID, model.SessionStatusPending, model.SessionStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !ok {
		sess, err := t.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status == model.SessionStatusProcessing {
			return nil, ErrConcurrentRunRejected
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, model.SessionStatusProcessing)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.runs[sessionID] = &activeRun{cancel: cancel}
	t.mu.Unlock()

	log.Infof("[SESSION] %s: pending -> processing", sessionID)
	t.Emit(ctx, model.ProgressEvent{
		Type:      model.EventStarted,
		SessionID: sessionID,
		Phase:     "extraction",
		Message:   "Processing started",
	})
	return runCtx, nil
}

// RecordDocument persists a document's extraction summary
func (t *Tracker) RecordDocument(ctx context.Context, doc *model.Document) error {
	unlock := t.locks.Lock(doc.SessionID)
	defer unlock()

	if _, ok := t.run(doc.SessionID); !ok {
		return ErrNoActiveRun
	}
	return t.store.SaveDocumentExtraction(ctx, doc)
}

// RecordStage persists one stage outcome. Outcomes reported after the session
// was cancelled belong to work that was in flight and are stored as abandoned.
func (t *Tracker) RecordStage(ctx context.Context, sessionID string, outcome model.StageOutcome) error {
	unlock := t.locks.Lock(sessionID)
	defer unlock()

	run, ok := t.run(sessionID)
	if !ok {
		return ErrNoActiveRun
	}
	if run.cancelled && outcome.State != model.OutcomeSkipped {
		outcome = model.Abandoned(outcome.Stage)
	}
	return t.store.SaveStageOutcome(ctx, sessionID, outcome)
}

// Finish moves the session from PROCESSING to its terminal status and ends
// the run. It returns the status actually reached, CANCELLED when a
// cancellation won the race.
func (t *Tracker) Finish(ctx context.Context, sessionID string, status model.SessionStatus) (model.SessionStatus, error) {
	if !status.IsTerminal() {
		return "", fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	unlock := t.locks.Lock(sessionID)
	defer unlock()

	run, ok := t.run(sessionID)
	if !ok {
		return "", ErrNoActiveRun
	}
	defer func() {
		t.mu.Lock()
		delete(t.runs, sessionID)
		t.mu.Unlock()
		run.cancel()
	}()

	final := status
	if run.cancelled {
		final = model.SessionStatusCancelled
	} else {
		won, err := t.store.UpdateStatus(ctx, sessionID, model.SessionStatusProcessing, status)
		if err != nil {
			return "", err
		}
		if !won {
			sess, err := t.store.GetSession(ctx, sessionID)
			if err != nil {
				return "", err
			}
			if sess.Status != model.SessionStatusCancelled {
				return sess.Status, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, status)
			}
			final = model.SessionStatusCancelled
		}
	}

	log.Infof("[SESSION] %s: processing -> %s", sessionID, final)
	event := model.ProgressEvent{
		Type:      model.EventComplete,
		SessionID: sessionID,
		Progress:  100,
		Phase:     "complete",
		Status:    final,
		Message:   completionMessage(final),
	}
	if final == model.SessionStatusFailed {
		event.Type = model.EventError
	}
	t.Emit(ctx, event)
	return final, nil
}

// Cancel moves a PENDING or PROCESSING session to CANCELLED and stops its run
// if it is active in this process. Cancelling a cancelled session is a no-op.
func (t *Tracker) Cancel(ctx context.Context, sessionID string) error {
	unlock := t.locks.Lock(sessionID)
	defer unlock()

	// the status can move PENDING -> PROCESSING in another process between
	// the read and the conditional update, so retry once
	var from model.SessionStatus
	for attempt := 0; ; attempt++ {
		sess, err := t.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		from = sess.Status
		if from == model.SessionStatusCancelled {
			break
		}
		if from.IsTerminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, model.SessionStatusCancelled)
		}
		won, err := t.store.UpdateStatus(ctx, sessionID, from, model.SessionStatusCancelled)
		if err != nil {
			return err
		}
		if won {
			break
		}
		if attempt >= 1 {
			return fmt.Errorf("session %s changed status during cancellation", sessionID)
		}
	}

	// a cancellation recorded by another instance still stops the run here
	if run, ok := t.run(sessionID); ok {
		run.cancelled = true
		run.cancel()
	}
	if from == model.SessionStatusCancelled {
		return nil
	}

	log.Infof("[SESSION] %s: %s -> cancelled", sessionID, from)
	if from == model.SessionStatusPending {
		t.Emit(ctx, model.ProgressEvent{
			Type:      model.EventComplete,
			SessionID: sessionID,
			Phase:     "complete",
			Status:    model.SessionStatusCancelled,
			Message:   completionMessage(model.SessionStatusCancelled),
		})
	}
	return nil
}

// ExpireStale cancels PENDING sessions created before the cutoff and returns
// how many were cancelled
func (t *Tracker) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := t.store.ListStale(ctx, model.SessionStatusPending, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		if err := t.Cancel(ctx, id); err != nil {
			log.Warnf("[SESSION] Failed to expire stale session %s: %v", id, err)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// FailStuck moves PROCESSING sessions whose run started before the cutoff
// and is not active in this process to FAILED. A run lost with its instance
// would otherwise hold the session forever. Returns how many were failed.
func (t *Tracker) FailStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := t.store.ListStale(ctx, model.SessionStatusProcessing, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, id := range ids {
		if t.Active(id) {
			continue
		}
		unlock := t.locks.Lock(id)
		won, err := t.store.UpdateStatus(ctx, id, model.SessionStatusProcessing, model.SessionStatusFailed)
		unlock()
		if err != nil {
			log.Warnf("[SESSION] Failed to recover stuck session %s: %v", id, err)
			continue
		}
		if !won {
			continue
		}
		log.Warnf("[SESSION] %s: processing -> failed (run started more than %s ago was lost)", id, olderThan)
		t.Emit(ctx, model.ProgressEvent{
			Type:         model.EventError,
			SessionID:    id,
			Progress:     100,
			Phase:        "complete",
			Status:       model.SessionStatusFailed,
			ErrorType:    "interrupted",
			ErrorMessage: "Processing was interrupted before it finished",
			Message:      completionMessage(model.SessionStatusFailed),
		})
		failed++
	}
	return failed, nil
}

// Active reports whether a run for the session is in progress in this process
func (t *Tracker) Active(sessionID string) bool {
	_, ok := t.run(sessionID)
	return ok
}

// Emit publishes a progress event, stamping the time. Publishing failures
// are logged and never interrupt processing.
func (t *Tracker) Emit(ctx context.Context, event model.ProgressEvent) {
	if t.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := t.events.Publish(ctx, event); err != nil {
		log.Warnf("[SESSION] Failed to emit progress event for %s: %v", event.SessionID, err)
	}
}

func (t *Tracker) run(sessionID string) (*activeRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[sessionID]
	return run, ok
}

func completionMessage(status model.SessionStatus) string {
	switch status {
	case model.SessionStatusCompleted:
		return "All study materials generated"
	case model.SessionStatusPartial:
		return "Some study materials could not be generated"
	case model.SessionStatusFailed:
		return "Study materials could not be generated"
	case model.SessionStatusCancelled:
		return "Processing cancelled"
	}
	return string(status)
}

// StatusReport is the client-facing view of a session
type StatusReport struct {
	SessionID   string               `json:"session_id"`
	Mode        model.ProcessingMode `json:"processing_mode"`
	Status      model.SessionStatus  `json:"status"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Stages      []StageReport        `json:"stages"`
	Documents   []DocumentReport     `json:"documents"`
}

// StageReport is one stage's outcome with its artifacts
type StageReport struct {
	Stage         model.StageKind    `json:"stage"`
	State         model.OutcomeState `json:"state"`
	ArtifactCount int                `json:"artifact_count"`
	Artifacts     json.RawMessage    `json:"artifacts,omitempty"`
	Error         *model.StageError  `json:"error,omitempty"`
}

// DocumentReport summarises one document's extraction
type DocumentReport struct {
	ID        string                 `json:"id"`
	Filename  string                 `json:"filename"`
	Kind      model.DocumentKind     `json:"kind"`
	PageCount int                    `json:"page_count"`
	Status    model.ExtractionStatus `json:"extraction_status"`
	Strategy  model.Strategy         `json:"strategy,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Warnings  []model.BatchFailure   `json:"warnings,omitempty"`
}

// Status builds the status report of a session
func (t *Tracker) Status(ctx context.Context, sessionID string) (*StatusReport, error) {
	sess, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildReport(sess), nil
}

// BuildReport converts a loaded session into its report. Stages are listed
// in display order.
func BuildReport(sess *model.ProcessingSession) *StatusReport {
	report := &StatusReport{
		SessionID:   sess.ID,
		Mode:        sess.ProcessingMode,
		Status:      sess.Status,
		StartedAt:   sess.StartedAt,
		CompletedAt: sess.CompletedAt,
		Stages:      []StageReport{},
		Documents:   []DocumentReport{},
	}

	byStage := make(map[model.StageKind]model.StageOutcomeRecord, len(sess.StageOutcomes))
	for _, rec := range sess.StageOutcomes {
		byStage[rec.Stage] = rec
	}
	for _, stage := range model.AllStages {
		rec, ok := byStage[stage]
		if !ok {
			continue
		}
		sr := StageReport{
			Stage:         rec.Stage,
			State:         rec.State,
			ArtifactCount: rec.ArtifactCount,
		}
		if len(rec.Artifacts) > 0 {
			sr.Artifacts = json.RawMessage(rec.Artifacts)
		}
		if rec.ErrorType != "" || rec.ErrorMessage != "" {
			sr.Error = &model.StageError{Type: rec.ErrorType, Message: rec.ErrorMessage}
		}
		report.Stages = append(report.Stages, sr)
	}

	for _, doc := range sess.Documents {
		dr := DocumentReport{
			ID:        doc.ID,
			Filename:  doc.Filename,
			Kind:      doc.Kind,
			PageCount: doc.PageCount,
			Status:    doc.ExtractionStatus,
			Strategy:  doc.Strategy,
			Error:     doc.ExtractionError,
		}
		if len(doc.BatchFailures) > 0 {
			if err := json.Unmarshal(doc.BatchFailures, &dr.Warnings); err != nil {
				log.Warnf("[SESSION] Unreadable batch failures for document %s: %v", doc.ID, err)
			}
		}
		report.Documents = append(report.Documents, dr)
	}
	return report
}
