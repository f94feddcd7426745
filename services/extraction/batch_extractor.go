package extraction

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
)

// PageMarkerFormat separates recognised pages so downstream stages keep
// page provenance
const PageMarkerFormat = "===== PAGE %d ====="

// Recognizer runs optical recognition on a rendered page
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// BatchExtractor extracts the text of one batch with the document's strategy
type BatchExtractor struct {
	recognizer Recognizer
}

// NewBatchExtractor creates an extractor. recognizer may be nil when
// optical recognition is unavailable.
func NewBatchExtractor(recognizer Recognizer) *BatchExtractor {
	return &BatchExtractor{recognizer: recognizer}
}

// CanRecognize reports whether OCR batches can be extracted
func (e *BatchExtractor) CanRecognize() bool {
	return e.recognizer != nil
}

// Extract never returns an error: failures are folded into the result so a
// failing batch cannot abort its siblings
func (e *BatchExtractor) Extract(ctx context.Context, h pagesource.Handle, batch model.PageBatch) model.ExtractionResult {
	var (
		text string
		err  error
	)
	switch batch.Strategy {
	case model.StrategyDirect:
		text, err = e.extractDirect(ctx, h, batch)
	case model.StrategyOCR:
		text, err = e.extractOCR(ctx, h, batch)
	default:
		err = &BatchExtractionError{
			DocumentID: batch.DocumentID,
			BatchIndex: batch.BatchIndex,
			PageRange:  batch.PageRange,
			Err:        fmt.Errorf("unknown strategy %q", batch.Strategy),
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return Abandon(batch)
		}
		return model.ExtractionResult{
			Batch:       batch,
			Status:      model.BatchStatusFailed,
			Err:         err,
			ErrorDetail: err.Error(),
		}
	}
	return model.ExtractionResult{Batch: batch, TextContent: text, Status: model.BatchStatusOK}
}

// Abandon builds the result for a batch that never ran
func Abandon(batch model.PageBatch) model.ExtractionResult {
	return model.ExtractionResult{
		Batch:       batch,
		Status:      model.BatchStatusAbandoned,
		Err:         context.Canceled,
		ErrorDetail: "abandoned: session cancelled",
	}
}

func (e *BatchExtractor) extractDirect(ctx context.Context, h pagesource.Handle, batch model.PageBatch) (string, error) {
	pages, err := h.ReadPages(ctx, batch.PageRange)
	if err != nil {
		return "", e.batchErr(batch, 0, err)
	}

	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := page.Text()
		if err != nil {
			return "", e.batchErr(batch, page.Number(), err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (e *BatchExtractor) extractOCR(ctx context.Context, h pagesource.Handle, batch model.PageBatch) (string, error) {
	if e.recognizer == nil {
		return "", e.batchErr(batch, 0, ErrOCRDisabled)
	}

	pages, err := h.ReadPages(ctx, batch.PageRange)
	if err != nil {
		return "", e.batchErr(batch, 0, err)
	}

	var sb strings.Builder
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := page.Render()
		if err != nil {
			return "", e.batchErr(batch, page.Number(), err)
		}
		text, err := e.recognizer.Recognize(ctx, img)
		if err != nil {
			return "", e.batchErr(batch, page.Number(), err)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, PageMarkerFormat, page.Number())
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (e *BatchExtractor) batchErr(batch model.PageBatch, page int, err error) error {
	return &BatchExtractionError{
		DocumentID: batch.DocumentID,
		BatchIndex: batch.BatchIndex,
		PageRange:  batch.PageRange,
		Page:       page,
		Err:        err,
	}
}
