package extraction

import (
	"errors"
	"fmt"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
)

var (
	// ErrCorruptDocument is returned when a document cannot be parsed at all
	ErrCorruptDocument = pagesource.ErrCorruptDocument

	// ErrProbeFailure is returned when the strategy probe cannot sample the
	// document. It is treated as a corrupt document.
	ErrProbeFailure = fmt.Errorf("%w: strategy probe failed", ErrCorruptDocument)

	// ErrEmptyDocument is returned for documents with zero pages
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrOCRDisabled is returned when a document needs optical recognition
	// but the processing mode does not allow it
	ErrOCRDisabled = errors.New("document requires optical recognition, which is disabled for this processing mode")

	// ErrAllBatchesFailed is returned when no batch of a document succeeded
	ErrAllBatchesFailed = errors.New("every batch of the document failed")

	// ErrBatchExtraction matches any BatchExtractionError
	ErrBatchExtraction = errors.New("batch extraction failed")
)

// BatchExtractionError records the failure of one batch. It never fails
// sibling batches or the document.
type BatchExtractionError struct {
	DocumentID string
	BatchIndex int
	PageRange  model.PageRange
	Page       int // failing page, 0 when the whole batch failed
	Err        error
}

func (e *BatchExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("batch %d (%s) of document %s: page %d: %v", e.BatchIndex, e.PageRange, e.DocumentID, e.Page, e.Err)
	}
	return fmt.Sprintf("batch %d (%s) of document %s: %v", e.BatchIndex, e.PageRange, e.DocumentID, e.Err)
}

func (e *BatchExtractionError) Unwrap() []error {
	return []error{ErrBatchExtraction, e.Err}
}
