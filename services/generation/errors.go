package generation

import (
	"errors"
	"fmt"

	"github.com/sahilchouksey/study-artifacts/model"
)

var (
	// ErrStageGeneration matches any StageGenerationError
	ErrStageGeneration = errors.New("stage generation failed")

	// ErrNoExtractableDocuments is returned when every document failed extraction
	ErrNoExtractableDocuments = errors.New("no document yielded extractable text")
)

// StageGenerationError is the failure of one stage. It never fails sibling stages.
type StageGenerationError struct {
	Stage model.StageKind
	Err   error
}

func (e *StageGenerationError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageGenerationError) Unwrap() []error {
	return []error{ErrStageGeneration, e.Err}
}
