package model

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentKind represents the kind of uploaded file
type DocumentKind string

const (
	DocumentKindPDF    DocumentKind = "pdf"
	DocumentKindSlides DocumentKind = "slides"
	DocumentKindImage  DocumentKind = "image"
)

// ExtractionStatus tracks the document-level extraction outcome
type ExtractionStatus string

const (
	ExtractionStatusPending  ExtractionStatus = "pending"
	ExtractionStatusOK       ExtractionStatus = "ok"
	ExtractionStatusDegraded ExtractionStatus = "degraded" // some batches failed
	ExtractionStatusFailed   ExtractionStatus = "failed"
)

// Document identifies one uploaded file. Immutable after upload except for
// the extraction summary written back by the pipeline.
type Document struct {
	ID           string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	SessionID    string       `gorm:"type:varchar(36);index;not null" json:"session_id"`
	Position     int          `gorm:"default:0" json:"position"` // order within the session
	Kind         DocumentKind `gorm:"type:varchar(20);not null" json:"kind"`
	Filename     string       `gorm:"not null" json:"filename"`
	SourceHandle string       `gorm:"type:text;not null" json:"source_handle"` // blob key resolved by the page source
	PageCount    int          `gorm:"default:0" json:"page_count"`

	// Extraction summary
	ExtractionStatus ExtractionStatus `gorm:"type:varchar(20);default:'pending'" json:"extraction_status"`
	Strategy         Strategy         `gorm:"type:varchar(10)" json:"strategy,omitempty"`
	ExtractionError  string           `gorm:"type:text" json:"extraction_error,omitempty"`
	BatchFailures    datatypes.JSON   `gorm:"type:jsonb" json:"batch_failures,omitempty"` // []BatchFailure
}

// TableName specifies the table name for Document
func (Document) TableName() string {
	return "session_documents"
}

// BatchFailure is the warning-level record of one failed batch
type BatchFailure struct {
	BatchIndex int    `json:"batch_index"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	Error      string `json:"error"`
}
