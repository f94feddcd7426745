// Package generation drives a processing session end to end: extraction of
// every uploaded document, then the independent generation stages enabled by
// the session's processing mode.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/extraction"
	"github.com/sahilchouksey/study-artifacts/services/session"
)

// Extraction covers progress 0-50, generation 50-100
const extractionShare = 50

// DocumentExtractor extracts one document
type DocumentExtractor interface {
	Run(ctx context.Context, doc *model.Document, opts extraction.RunOptions) extraction.DocumentResult
}

// Config holds orchestrator settings
type Config struct {
	// StageConcurrency bounds how many stages run at once
	StageConcurrency int
}

// DefaultConfig runs every stage at once
func DefaultConfig() Config {
	return Config{StageConcurrency: len(model.AllStages)}
}

// Orchestrator runs sessions through extraction and generation
type Orchestrator struct {
	tracker   *session.Tracker
	extractor DocumentExtractor
	backend   Backend
	cfg       Config

	wg sync.WaitGroup
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(tracker *session.Tracker, extractor DocumentExtractor, backend Backend, cfg Config) *Orchestrator {
	if cfg.StageConcurrency <= 0 {
		cfg.StageConcurrency = len(model.AllStages)
	}
	return &Orchestrator{
		tracker:   tracker,
		extractor: extractor,
		backend:   backend,
		cfg:       cfg,
	}
}

// Submit starts a PENDING session in the background. The transition to
// PROCESSING happens before Submit returns, so a second Submit for the same
// session fails with session.ErrConcurrentRunRejected.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string) error {
	// the run outlives the request that submitted it
	runCtx, err := o.tracker.Begin(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.run(runCtx, sessionID); err != nil {
			log.Errorf("Generation: Session %s ended with error: %v", sessionID, err)
		}
	}()
	return nil
}

// Process runs a PENDING session to completion and returns its terminal status
func (o *Orchestrator) Process(ctx context.Context, sessionID string) (model.SessionStatus, error) {
	runCtx, err := o.tracker.Begin(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return o.run(runCtx, sessionID)
}

// Wait blocks until every submitted run has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Status returns the session's status report
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*session.StatusReport, error) {
	return o.tracker.Status(ctx, sessionID)
}

// Cancel cancels a PENDING or PROCESSING session
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	return o.tracker.Cancel(ctx, sessionID)
}

func (o *Orchestrator) run(runCtx context.Context, sessionID string) (model.SessionStatus, error) {
	// persistence must survive cancellation of the run
	writeCtx := context.WithoutCancel(runCtx)

	sess, err := o.tracker.Session(writeCtx, sessionID)
	if err != nil {
		o.tracker.Finish(writeCtx, sessionID, model.SessionStatusFailed)
		return model.SessionStatusFailed, fmt.Errorf("failed to load session: %w", err)
	}
	policy, err := PolicyFor(sess.ProcessingMode)
	if err != nil {
		return o.tracker.Finish(writeCtx, sessionID, model.SessionStatusFailed)
	}

	log.Infof("Generation: Session %s started (%s, %d documents, stages %v)",
		sessionID, policy.Mode, len(sess.Documents), policy.Stages)

	text, extracted := o.extractAll(runCtx, writeCtx, sess, policy)

	if runCtx.Err() != nil {
		o.closeStages(writeCtx, sessionID, policy, model.Abandoned)
		return o.tracker.Finish(writeCtx, sessionID, model.SessionStatusCancelled)
	}

	if extracted == 0 {
		log.Warnf("Generation: Session %s: %v, skipping generation", sessionID, ErrNoExtractableDocuments)
		o.closeStages(writeCtx, sessionID, policy, func(stage model.StageKind) model.StageOutcome {
			return model.Failed(stage, string(ErrorTypeExtraction), UserMessage(ErrorTypeExtraction))
		})
		return o.tracker.Finish(writeCtx, sessionID, model.SessionStatusFailed)
	}

	outcomes := o.generate(runCtx, writeCtx, sess, policy, text)

	status := Aggregate(outcomes)
	if runCtx.Err() != nil {
		status = model.SessionStatusCancelled
	}
	return o.tracker.Finish(writeCtx, sessionID, status)
}

// closeStages records an outcome for every stage without running any,
// disabled stages as skipped
func (o *Orchestrator) closeStages(ctx context.Context, sessionID string, policy ModePolicy, outcome func(model.StageKind) model.StageOutcome) {
	for _, stage := range model.AllStages {
		oc := model.Skipped(stage)
		if policy.Enabled(stage) {
			oc = outcome(stage)
		}
		o.record(ctx, sessionID, oc)
	}
}

// extractAll extracts the documents in upload order and returns the labeled
// text of every document that yielded any, with the number of such documents
func (o *Orchestrator) extractAll(runCtx, writeCtx context.Context, sess *model.ProcessingSession, policy ModePolicy) (string, int) {
	var sections []string
	total := len(sess.Documents)

	for i := range sess.Documents {
		if runCtx.Err() != nil {
			break
		}
		doc := sess.Documents[i]
		base := extractionShare * i / total

		res := o.extractor.Run(runCtx, &doc, extraction.RunOptions{
			AllowOCR: policy.AllowOCR,
			OnStrategy: func(d extraction.Decision) {
				o.tracker.Emit(writeCtx, model.ProgressEvent{
					Type:       model.EventInfo,
					SessionID:  sess.ID,
					Progress:   base,
					Phase:      "extraction",
					DocumentID: doc.ID,
					Strategy:   d.Strategy,
					Message:    fmt.Sprintf("Extracting %s (%d pages, %s)", doc.Filename, d.PageCount, d.Strategy),
				})
			},
			OnBatch: func(br model.ExtractionResult, completed, batches int) {
				event := model.ProgressEvent{
					Type:             model.EventProgress,
					SessionID:        sess.ID,
					Progress:         base + extractionShare*completed/(batches*total),
					Phase:            "extraction",
					DocumentID:       doc.ID,
					Strategy:         br.Batch.Strategy,
					BatchIndex:       br.Batch.BatchIndex,
					PageRange:        br.Batch.PageRange.String(),
					TotalBatches:     batches,
					CompletedBatches: completed,
					Message:          fmt.Sprintf("Extracted %s of %s", br.Batch.PageRange, doc.Filename),
				}
				if br.Status == model.BatchStatusFailed {
					event.Type = model.EventWarning
					event.Message = fmt.Sprintf("Could not extract %s of %s", br.Batch.PageRange, doc.Filename)
				}
				o.tracker.Emit(writeCtx, event)
			},
		})

		// a document interrupted by cancellation keeps its pending summary
		if res.Failed() && runCtx.Err() != nil {
			break
		}

		doc.PageCount = res.Decision.PageCount
		doc.Strategy = res.Decision.Strategy
		doc.ExtractionStatus = res.Status()
		doc.ExtractionError = ""
		if res.Failed() {
			doc.ExtractionError = DocumentErrorMessage(res.Err)
			log.Warnf("Generation: Document %s (%s) failed extraction: %v", doc.ID, doc.Filename, res.Err)
		}
		if failures := res.Failures(); len(failures) > 0 {
			if raw, err := json.Marshal(failures); err == nil {
				doc.BatchFailures = raw
			}
		}
		if err := o.tracker.RecordDocument(writeCtx, &doc); err != nil {
			log.Errorf("Generation: Failed to record extraction of %s: %v", doc.ID, err)
		}

		if res.Failed() {
			o.tracker.Emit(writeCtx, model.ProgressEvent{
				Type:         model.EventWarning,
				SessionID:    sess.ID,
				Progress:     extractionShare * (i + 1) / total,
				Phase:        "extraction",
				DocumentID:   doc.ID,
				ErrorMessage: doc.ExtractionError,
				Message:      fmt.Sprintf("%s could not be extracted", doc.Filename),
			})
			continue
		}
		o.tracker.Emit(writeCtx, model.ProgressEvent{
			Type:       model.EventInfo,
			SessionID:  sess.ID,
			Progress:   extractionShare * (i + 1) / total,
			Phase:      "extraction",
			DocumentID: doc.ID,
			Strategy:   doc.Strategy,
			Message:    fmt.Sprintf("Extracted %s", doc.Filename),
		})
		sections = append(sections, fmt.Sprintf("### Document %d: %s\n\n%s", i+1, doc.Filename, res.Text))
	}

	return strings.Join(sections, "\n\n"), len(sections)
}

// generate runs the enabled stages concurrently. A failing stage never
// affects its siblings.
func (o *Orchestrator) generate(runCtx, writeCtx context.Context, sess *model.ProcessingSession, policy ModePolicy, text string) []model.StageOutcome {
	outcomes := make([]model.StageOutcome, len(model.AllStages))
	enabled := len(policy.Stages)
	var completed atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.StageConcurrency)
	for i, stage := range model.AllStages {
		if !policy.Enabled(stage) {
			outcomes[i] = model.Skipped(stage)
			o.record(writeCtx, sess.ID, outcomes[i])
			continue
		}
		if runCtx.Err() != nil {
			outcomes[i] = model.Abandoned(stage)
			o.record(writeCtx, sess.ID, outcomes[i])
			continue
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				outcomes[i] = model.Abandoned(stage)
			} else {
				outcomes[i] = o.runStage(runCtx, Request{
					SessionID:      sess.ID,
					Stage:          stage,
					Text:           text,
					Aggressiveness: policy.Aggressiveness,
					ItemCount:      ItemCount(stage, policy.Aggressiveness),
				})
			}
			o.record(writeCtx, sess.ID, outcomes[i])

			n := int(completed.Add(1))
			event := model.ProgressEvent{
				Type:       model.EventProgress,
				SessionID:  sess.ID,
				Progress:   extractionShare + (100-extractionShare)*n/enabled,
				Phase:      "generation",
				Stage:      stage,
				StageState: outcomes[i].State,
				Message:    fmt.Sprintf("%s: %s", stage, outcomes[i].State),
			}
			if e := outcomes[i].Error; e != nil {
				event.Type = model.EventWarning
				event.ErrorType = e.Type
				event.ErrorMessage = e.Message
			}
			o.tracker.Emit(writeCtx, event)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runStage invokes the backend for one stage, converting errors and panics
// into a failed outcome
func (o *Orchestrator) runStage(ctx context.Context, req Request) (outcome model.StageOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Generation: %s stage panicked for %s: %v\n%s", req.Stage, req.SessionID, r, debug.Stack())
			outcome = failedOutcome(&StageGenerationError{Stage: req.Stage, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	artifacts, err := o.backend.Generate(ctx, req)
	if ctx.Err() != nil {
		return model.Abandoned(req.Stage)
	}
	if err == nil {
		switch {
		case artifacts == nil:
			err = fmt.Errorf("backend returned no artifacts")
		case artifacts.Stage() != req.Stage:
			err = fmt.Errorf("backend returned %s artifacts", artifacts.Stage())
		case artifacts.Len() == 0:
			err = fmt.Errorf("validation: no items generated")
		}
	}
	if err != nil {
		stageErr := &StageGenerationError{Stage: req.Stage, Err: err}
		log.Warnf("Generation: %s: %v", req.SessionID, stageErr)
		return failedOutcome(stageErr)
	}

	log.Infof("Generation: %s stage produced %d items for %s", req.Stage, artifacts.Len(), req.SessionID)
	return model.Succeeded(req.Stage, artifacts)
}

func failedOutcome(err *StageGenerationError) model.StageOutcome {
	errType, _ := ClassifyError(err.Err)
	return model.Failed(err.Stage, string(errType), UserMessage(errType))
}

func (o *Orchestrator) record(ctx context.Context, sessionID string, outcome model.StageOutcome) {
	if err := o.tracker.RecordStage(ctx, sessionID, outcome); err != nil {
		log.Errorf("Generation: Failed to record %s outcome for %s: %v", outcome.Stage, sessionID, err)
	}
}

// Aggregate derives the terminal status from the stage outcomes. Skipped
// stages do not count; with no enabled stage the session is COMPLETED.
func Aggregate(outcomes []model.StageOutcome) model.SessionStatus {
	var succeeded, failed, abandoned int
	for _, oc := range outcomes {
		switch oc.State {
		case model.OutcomeSucceeded:
			succeeded++
		case model.OutcomeFailed:
			failed++
		case model.OutcomeAbandoned:
			abandoned++
		}
	}

	switch {
	case abandoned > 0:
		return model.SessionStatusCancelled
	case failed == 0:
		return model.SessionStatusCompleted
	case succeeded == 0:
		return model.SessionStatusFailed
	default:
		return model.SessionStatusPartial
	}
}
