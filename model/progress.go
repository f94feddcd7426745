package model

import "time"

// ProgressEventType enumerates the kinds of progress events
type ProgressEventType string

const (
	EventStarted  ProgressEventType = "started"
	EventProgress ProgressEventType = "progress"
	EventWarning  ProgressEventType = "warning"
	EventInfo     ProgressEventType = "info"
	EventComplete ProgressEventType = "complete"
	EventError    ProgressEventType = "error"
)

// ProgressEvent represents a progress update streamed to polling clients via SSE
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	SessionID string            `json:"session_id"`

	Progress int    `json:"progress"` // 0-100
	Phase    string `json:"phase"`    // "extraction", "generation", "complete"
	Message  string `json:"message"`

	// Extraction detail
	DocumentID       string   `json:"document_id,omitempty"`
	Strategy         Strategy `json:"strategy,omitempty"`
	BatchIndex       int      `json:"batch_index,omitempty"`
	PageRange        string   `json:"page_range,omitempty"`
	TotalBatches     int      `json:"total_batches,omitempty"`
	CompletedBatches int      `json:"completed_batches,omitempty"`

	// Generation detail
	Stage        StageKind    `json:"stage,omitempty"`
	StageState   OutcomeState `json:"stage_state,omitempty"`
	ErrorType    string       `json:"error_type,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`

	// Terminal status (complete events)
	Status SessionStatus `json:"status,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Redis key patterns for session progress
const (
	// RedisKeySessionEvents is the pub/sub channel for a session's events
	// Usage: fmt.Sprintf(RedisKeySessionEvents, sessionID)
	RedisKeySessionEvents = "session:events:%s"

	// RedisKeySessionLastEvent stores the most recent event as JSON
	// Usage: fmt.Sprintf(RedisKeySessionLastEvent, sessionID)
	RedisKeySessionLastEvent = "session:last_event:%s"
)
