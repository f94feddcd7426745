package extraction

import (
	"context"
	"fmt"
	"unicode"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
)

// Decision is the per-document strategy chosen by the Selector
type Decision struct {
	Strategy     model.Strategy
	PageCount    int
	SampledPages int
	Density      float64 // non-space characters per sampled page
}

// Selector decides between direct text extraction and optical recognition
// by sampling the text layer of a leading sample of pages. The decision holds
// for the whole document. Documents that cannot be rendered always go direct.
type Selector struct {
	samplePages int
	threshold   float64
}

// NewSelector creates a selector from the extraction configuration
func NewSelector(cfg Config) *Selector {
	return &Selector{samplePages: cfg.SamplePages, threshold: cfg.DensityThreshold}
}

// Select samples the opened document and returns the strategy for it.
// Probe errors are returned wrapped in ErrProbeFailure.
func (s *Selector) Select(ctx context.Context, h pagesource.Handle) (Decision, error) {
	pageCount := h.PageCount()
	if pageCount <= 0 {
		return Decision{}, ErrEmptyDocument
	}

	sample := min(max(s.samplePages, 1), pageCount)
	pages, err := h.ReadPages(ctx, model.PageRange{Start: 1, End: sample})
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrProbeFailure, err)
	}

	chars := 0
	for _, page := range pages {
		text, err := page.Text()
		if err != nil {
			return Decision{}, fmt.Errorf("%w: page %d: %v", ErrProbeFailure, page.Number(), err)
		}
		chars += countNonSpace(text)
	}

	d := Decision{
		PageCount:    pageCount,
		SampledPages: sample,
		Density:      float64(chars) / float64(sample),
		Strategy:     model.StrategyOCR,
	}
	if d.Density >= s.threshold || !pagesource.CanRender(h) {
		d.Strategy = model.StrategyDirect
	}
	return d, nil
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
