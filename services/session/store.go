package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/sahilchouksey/study-artifacts/model"
)

// Store persists sessions, their documents and stage outcomes
type Store interface {
	// CreateSession inserts a session together with its documents
	CreateSession(ctx context.Context, s *model.ProcessingSession) error
	// GetSession loads a session with documents (by position) and stage outcomes
	GetSession(ctx context.Context, id string) (*model.ProcessingSession, error)
	// UpdateStatus moves a session from one status to another only if it is
	// currently in from. It reports whether the transition happened.
	UpdateStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error)
	// SaveStageOutcome inserts or replaces the outcome of one stage
	SaveStageOutcome(ctx context.Context, sessionID string, outcome model.StageOutcome) error
	// SaveDocumentExtraction writes back a document's extraction summary
	SaveDocumentExtraction(ctx context.Context, doc *model.Document) error
	// ListStale returns ids of sessions in status since before the cutoff:
	// created before it when never started, started before it otherwise
	ListStale(ctx context.Context, status model.SessionStatus, before time.Time) ([]string, error)
}

// outcomeRecord converts an outcome into its persisted form
func outcomeRecord(sessionID string, outcome model.StageOutcome) (model.StageOutcomeRecord, error) {
	rec := model.StageOutcomeRecord{
		SessionID: sessionID,
		Stage:     outcome.Stage,
		State:     outcome.State,
	}
	if outcome.Artifacts != nil {
		raw, err := marshalArtifacts(outcome.Artifacts)
		if err != nil {
			return rec, err
		}
		rec.Artifacts = raw
		rec.ArtifactCount = outcome.Artifacts.Len()
	}
	if outcome.Error != nil {
		rec.ErrorType = outcome.Error.Type
		rec.ErrorMessage = outcome.Error.Message
	}
	return rec, nil
}

func marshalArtifacts(a model.Artifacts) (datatypes.JSON, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s artifacts: %w", a.Stage(), err)
	}
	return datatypes.JSON(raw), nil
}

// statusUpdates returns the columns written alongside a status change
func statusUpdates(to model.SessionStatus, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if to == model.SessionStatusProcessing {
		updates["started_at"] = now
	}
	if to.IsTerminal() {
		updates["completed_at"] = now
	}
	return updates
}
