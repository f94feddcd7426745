package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sahilchouksey/study-artifacts/model"
)

// GormStore persists sessions in the application database
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed session store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreateSession inserts a session and its documents in one transaction
func (s *GormStore) CreateSession(ctx context.Context, sess *model.ProcessingSession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session with its documents and stage outcomes
func (s *GormStore) GetSession(ctx context.Context, id string) (*model.ProcessingSession, error) {
	var sess model.ProcessingSession
	err := s.db.WithContext(ctx).Preload("Documents", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("StageOutcomes").First(&sess, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

// UpdateStatus is a conditional update; only one caller can win a transition
func (s *GormStore) UpdateStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.ProcessingSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(statusUpdates(to, time.Now()))
	if result.Error != nil {
		return false, fmt.Errorf("failed to update session status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SaveStageOutcome upserts on (session_id, stage)
func (s *GormStore) SaveStageOutcome(ctx context.Context, sessionID string, outcome model.StageOutcome) error {
	rec, err := outcomeRecord(sessionID, outcome)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "stage"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "artifact_count", "artifacts", "error_type", "error_message", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save %s outcome: %w", outcome.Stage, err)
	}
	return nil
}

// SaveDocumentExtraction writes the extraction summary columns of a document
func (s *GormStore) SaveDocumentExtraction(ctx context.Context, doc *model.Document) error {
	result := s.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"page_count":        doc.PageCount,
			"extraction_status": doc.ExtractionStatus,
			"strategy":          doc.Strategy,
			"extraction_error":  doc.ExtractionError,
			"batch_failures":    doc.BatchFailures,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save document extraction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s not found", doc.ID)
	}
	return nil
}

// ListStale returns sessions left in status since before the cutoff
func (s *GormStore) ListStale(ctx context.Context, status model.SessionStatus, before time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.ProcessingSession{}).
		Where("status = ? AND COALESCE(started_at, created_at) < ?", status, before).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	return ids, nil
}
