package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
)

// RunOptions controls a single document run
type RunOptions struct {
	// AllowOCR is false for processing modes without optical recognition
	AllowOCR bool
	// OnStrategy is called once the strategy is decided
	OnStrategy func(d Decision)
	// OnBatch is called as each batch finishes, possibly concurrently
	OnBatch func(res model.ExtractionResult, completed, total int)
}

// DocumentResult is the outcome of extracting one document
type DocumentResult struct {
	DocumentID string
	Decision   Decision
	// Results are in batch order regardless of completion order
	Results []model.ExtractionResult
	// Text is the ordered concatenation of the successful batches
	Text string
	// Err is set when the whole document failed
	Err error
}

// Failed reports a document-level extraction failure
func (r DocumentResult) Failed() bool {
	return r.Err != nil
}

// Failures lists the failed batches as warning records
func (r DocumentResult) Failures() []model.BatchFailure {
	var out []model.BatchFailure
	for _, res := range r.Results {
		if res.Status == model.BatchStatusFailed {
			out = append(out, res.Failure())
		}
	}
	return out
}

// Status summarises the document extraction
func (r DocumentResult) Status() model.ExtractionStatus {
	if r.Err != nil {
		return model.ExtractionStatusFailed
	}
	for _, res := range r.Results {
		if res.Status != model.BatchStatusOK {
			return model.ExtractionStatusDegraded
		}
	}
	return model.ExtractionStatusOK
}

// Engine composes the Selector, Planner and BatchExtractor per document
type Engine struct {
	source    pagesource.Source
	selector  *Selector
	extractor *BatchExtractor
	cfg       Config
}

// NewEngine creates an extraction engine
func NewEngine(source pagesource.Source, recognizer Recognizer, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction config: %w", err)
	}
	return &Engine{
		source:    source,
		selector:  NewSelector(cfg),
		extractor: NewBatchExtractor(recognizer),
		cfg:       cfg,
	}, nil
}

// Run extracts one document. Batches run on a worker pool bounded by
// Config.Workers; Run returns once every batch has finished or been abandoned.
func (e *Engine) Run(ctx context.Context, doc *model.Document, opts RunOptions) DocumentResult {
	result := DocumentResult{DocumentID: doc.ID}

	h, err := e.source.Open(ctx, doc)
	if err != nil {
		result.Err = err
		return result
	}
	defer h.Close()

	decision, err := e.selector.Select(ctx, h)
	if err != nil {
		result.Err = err
		return result
	}
	result.Decision = decision
	log.Infof("ExtractionEngine: Document %s (%s): %d pages, density %.1f chars/page, strategy %s",
		doc.ID, doc.Filename, decision.PageCount, decision.Density, decision.Strategy)

	if opts.OnStrategy != nil {
		opts.OnStrategy(decision)
	}

	if decision.Strategy == model.StrategyOCR && (!opts.AllowOCR || !e.extractor.CanRecognize()) {
		result.Err = ErrOCRDisabled
		return result
	}

	batches, err := Plan(doc.ID, decision.PageCount, decision.Strategy, e.cfg.MaxPagesFor(decision.Strategy))
	if err != nil {
		result.Err = err
		return result
	}

	log.Infof("ExtractionEngine: Processing %d batches in parallel (max %d concurrent)", len(batches), e.cfg.Workers)

	results := make([]model.ExtractionResult, len(batches))
	var completed atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for i, batch := range batches {
		// stop scheduling once cancelled
		if ctx.Err() != nil {
			results[i] = Abandon(batch)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = Abandon(batch)
				return nil
			}
			res := e.extractor.Extract(ctx, h, batch)
			results[i] = res
			if res.Status == model.BatchStatusFailed {
				log.Warnf("ExtractionEngine: Batch %d (%s) of %s failed: %v", batch.BatchIndex, batch.PageRange, doc.ID, res.Err)
			}
			if opts.OnBatch != nil {
				opts.OnBatch(res, int(completed.Add(1)), len(batches))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Results = results
	result.Text, result.Err = assemble(ctx, results)
	return result
}

// assemble concatenates successful batch text in page order
func assemble(ctx context.Context, results []model.ExtractionResult) (string, error) {
	var (
		parts    []string
		ok       int
		firstErr error
	)
	for _, res := range results {
		switch res.Status {
		case model.BatchStatusOK:
			ok++
			if res.TextContent != "" {
				parts = append(parts, res.TextContent)
			}
		case model.BatchStatusFailed:
			if firstErr == nil {
				firstErr = res.Err
			}
		}
	}

	if ok == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if firstErr == nil {
			firstErr = errors.New("no batch produced output")
		}
		return "", fmt.Errorf("%w: %v", ErrAllBatchesFailed, firstErr)
	}

	failed := len(results) - ok
	if failed > 0 {
		log.Warnf("ExtractionEngine: %d/%d batches did not complete (%.1f%%)", failed, len(results), float64(failed)*100/float64(len(results)))
	}
	return strings.Join(parts, "\n\n"), nil
}
