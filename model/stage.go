package model

// OutcomeState discriminates the StageOutcome variants
type OutcomeState string

const (
	OutcomeSucceeded OutcomeState = "succeeded"
	OutcomeFailed    OutcomeState = "failed"
	OutcomeSkipped   OutcomeState = "skipped"   // disabled by processing mode
	OutcomeAbandoned OutcomeState = "abandoned" // in flight or unscheduled when the session was cancelled
)

// StageError carries the failure of a single stage. Type is a general
// category suitable for end users; Message is the user-facing text.
type StageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StageOutcome is the result of one generation stage for one session.
// Exactly one of Artifacts (succeeded) or Error (failed) is set.
type StageOutcome struct {
	Stage     StageKind    `json:"stage"`
	State     OutcomeState `json:"state"`
	Artifacts Artifacts    `json:"artifacts,omitempty"`
	Error     *StageError  `json:"error,omitempty"`
}

// Succeeded builds a successful outcome
func Succeeded(stage StageKind, artifacts Artifacts) StageOutcome {
	return StageOutcome{Stage: stage, State: OutcomeSucceeded, Artifacts: artifacts}
}

// Failed builds a failed outcome
func Failed(stage StageKind, errType, message string) StageOutcome {
	return StageOutcome{Stage: stage, State: OutcomeFailed, Error: &StageError{Type: errType, Message: message}}
}

// Skipped builds an outcome for a stage disabled by the processing mode
func Skipped(stage StageKind) StageOutcome {
	return StageOutcome{Stage: stage, State: OutcomeSkipped}
}

// Abandoned builds an outcome for a stage cut short by cancellation
func Abandoned(stage StageKind) StageOutcome {
	return StageOutcome{Stage: stage, State: OutcomeAbandoned}
}
