package extraction

import (
	"fmt"

	"github.com/sahilchouksey/study-artifacts/model"
)

// Plan partitions [1, pageCount] into contiguous batches of at most
// maxPagesPerBatch pages. Documents smaller than one batch take the same
// path and yield a single batch.
func Plan(documentID string, pageCount int, strategy model.Strategy, maxPagesPerBatch int) ([]model.PageBatch, error) {
	if maxPagesPerBatch < 1 {
		return nil, fmt.Errorf("max pages per batch must be at least 1, got %d", maxPagesPerBatch)
	}
	if pageCount <= 0 {
		return nil, ErrEmptyDocument
	}

	batches := make([]model.PageBatch, 0, (pageCount+maxPagesPerBatch-1)/maxPagesPerBatch)
	for start := 1; start <= pageCount; start += maxPagesPerBatch {
		end := min(start+maxPagesPerBatch-1, pageCount)
		batches = append(batches, model.PageBatch{
			DocumentID: documentID,
			BatchIndex: len(batches),
			PageRange:  model.PageRange{Start: start, End: end},
			Strategy:   strategy,
		})
	}
	return batches, nil
}
