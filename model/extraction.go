package model

import "fmt"

// Strategy is the per-document extraction decision
type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyOCR    Strategy = "ocr"
)

// PageRange represents a range of pages (1-indexed, inclusive)
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in the range
func (r PageRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r PageRange) String() string {
	return fmt.Sprintf("pages %d-%d", r.Start, r.End)
}

// PageBatch is a contiguous page range of one document extracted as a unit
type PageBatch struct {
	DocumentID string    `json:"document_id"`
	BatchIndex int       `json:"batch_index"`
	PageRange  PageRange `json:"page_range"`
	Strategy   Strategy  `json:"strategy_used"`
}

// BatchStatus is the outcome of a single batch extraction
type BatchStatus string

const (
	BatchStatusOK        BatchStatus = "ok"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusAbandoned BatchStatus = "abandoned" // never ran, session cancelled
)

// ExtractionResult is produced once per batch and never mutated
type ExtractionResult struct {
	Batch       PageBatch   `json:"batch"`
	TextContent string      `json:"text_content"`
	Status      BatchStatus `json:"status"`
	Err         error       `json:"-"`
	ErrorDetail string      `json:"error_detail,omitempty"`
}

// Failure converts a failed result into its persisted warning record
func (r ExtractionResult) Failure() BatchFailure {
	return BatchFailure{
		BatchIndex: r.Batch.BatchIndex,
		StartPage:  r.Batch.PageRange.Start,
		EndPage:    r.Batch.PageRange.End,
		Error:      r.ErrorDetail,
	}
}
