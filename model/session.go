package model

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus represents the lifecycle state of a processing session
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusPartial    SessionStatus = "partially_completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// IsTerminal returns true once no further transitions are possible
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusPartial, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// ProcessingMode governs OCR usage and which generation stages run
type ProcessingMode string

const (
	ProcessingModeAIOnly         ProcessingMode = "ai_only"
	ProcessingModeHybrid         ProcessingMode = "hybrid"
	ProcessingModeExtractionOnly ProcessingMode = "extraction_only"
)

// Valid reports whether the mode is one of the known modes
func (m ProcessingMode) Valid() bool {
	switch m {
	case ProcessingModeAIOnly, ProcessingModeHybrid, ProcessingModeExtractionOnly:
		return true
	}
	return false
}

// ProcessingSession is the unit of work spanning the uploaded documents and
// every enabled generation stage
type ProcessingSession struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	UserID         uint           `gorm:"index;not null" json:"user_id"`
	ProcessingMode ProcessingMode `gorm:"type:varchar(20);not null" json:"processing_mode"`
	Status         SessionStatus  `gorm:"type:varchar(25);default:'pending';index" json:"status"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`

	// Relationships
	Documents     []Document           `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
	StageOutcomes []StageOutcomeRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"stage_outcomes,omitempty"`
}

// TableName specifies the table name for ProcessingSession
func (ProcessingSession) TableName() string {
	return "processing_sessions"
}

// StageOutcomeRecord is the persisted form of a StageOutcome
type StageOutcomeRecord struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	SessionID     string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_session_stage" json:"session_id"`
	Stage         StageKind      `gorm:"type:varchar(20);not null;uniqueIndex:idx_session_stage" json:"stage"`
	State         OutcomeState   `gorm:"type:varchar(20);not null" json:"state"`
	ArtifactCount int            `gorm:"default:0" json:"artifact_count"`
	Artifacts     datatypes.JSON `gorm:"type:jsonb" json:"artifacts,omitempty"`
	ErrorType     string         `gorm:"type:varchar(20)" json:"error_type,omitempty"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name for StageOutcomeRecord
func (StageOutcomeRecord) TableName() string {
	return "stage_outcomes"
}
