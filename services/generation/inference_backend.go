package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/digitalocean"
	"github.com/sahilchouksey/study-artifacts/utils"
)

// DefaultMaxInputChars bounds the text sent with a single stage request
const DefaultMaxInputChars = 60000

// how long all stages back off after the provider answers 429
const throttleCooldown = 10 * time.Second

// Completer is the part of the inference client the backend needs
type Completer interface {
	JSONCompletion(ctx context.Context, systemPrompt, userPrompt string, opts ...digitalocean.InferenceOption) (string, *digitalocean.InferenceUsage, error)
}

// InferenceBackend generates artifacts with a chat completion per stage
type InferenceBackend struct {
	client        Completer
	limiter       *digitalocean.RateLimiter
	maxInputChars int
}

// NewInferenceBackend creates a backend. limiter may be nil.
func NewInferenceBackend(client Completer, limiter *digitalocean.RateLimiter, maxInputChars int) *InferenceBackend {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	return &InferenceBackend{client: client, limiter: limiter, maxInputChars: maxInputChars}
}

// Generate implements Backend
func (b *InferenceBackend) Generate(ctx context.Context, req Request) (model.Artifacts, error) {
	set, err := model.NewArtifacts(req.Stage)
	if err != nil {
		return nil, err
	}
	tmpl, ok := stagePrompts[req.Stage]
	if !ok {
		return nil, fmt.Errorf("no prompt for stage %s", req.Stage)
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	text := req.Text
	if len(text) > b.maxInputChars {
		log.Warnf("Generation: %s text truncated from %d to %d chars for %s", req.SessionID, len(text), b.maxInputChars, req.Stage)
		text = truncateUTF8(text, b.maxInputChars)
	}

	systemPrompt := fmt.Sprintf(tmpl, req.ItemCount)
	userPrompt := "Study material:\n\n" + text

	raw, usage, err := b.client.JSONCompletion(ctx, systemPrompt, userPrompt,
		digitalocean.WithInferenceMaxTokens(maxTokensFor(req.Stage, req.ItemCount)))
	if err != nil {
		var apiErr *digitalocean.APIError
		if b.limiter != nil && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			log.Warnf("Generation: provider throttled %s, pausing requests for %s", req.Stage, throttleCooldown)
			b.limiter.Penalize(throttleCooldown)
		}
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if usage != nil {
		log.Debugf("Generation: %s %s used %d tokens", req.SessionID, req.Stage, usage.TotalTokens)
	}

	if err := utils.ExtractJSONTo(raw, set); err != nil {
		return nil, fmt.Errorf("invalid json response: %w", err)
	}
	return set, nil
}

func maxTokensFor(stage model.StageKind, items int) int {
	per := 400
	switch stage {
	case model.StageMockTests:
		per = 3000
	case model.StageCheatSheets, model.StageNotes:
		per = 800
	}
	n := per * items
	if n < 1024 {
		n = 1024
	}
	if n > 16000 {
		n = 16000
	}
	return n
}

// truncateUTF8 cuts s to at most n bytes on a rune boundary
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

const promptPreamble = "You are an expert tutor creating study material from the text the user provides. " +
	"Use only facts present in the text. Respond with a single JSON object and nothing else.\n\n"

var stagePrompts = map[model.StageKind]string{
	model.StageQuestions: promptPreamble +
		"Write %d practice questions covering the most important concepts. Mix multiple choice and short answer.\n" +
		`Schema: {"questions":[{"prompt":"","choices":["",""],"answer":"","explanation":"","difficulty":"easy|medium|hard","page_ref":0}]}` + "\n" +
		"Omit choices for short answer questions.",
	model.StageMockTests: promptPreamble +
		"Write %d mock tests of 10 questions each, with a realistic duration and marks.\n" +
		`Schema: {"mock_tests":[{"title":"","duration_minutes":0,"total_marks":0,"questions":[{"prompt":"","choices":[""],"answer":"","explanation":"","difficulty":""}]}]}`,
	model.StageMnemonics: promptPreamble +
		"Write %d mnemonics for concepts that are hard to memorize, such as lists, sequences or formulas.\n" +
		`Schema: {"mnemonics":[{"concept":"","mnemonic":"","explanation":""}]}`,
	model.StageCheatSheets: promptPreamble +
		"Write %d cheat sheets, each condensing one major topic into short sections.\n" +
		`Schema: {"cheat_sheets":[{"title":"","sections":[""],"formulas":[""]}]}`,
	model.StageNotes: promptPreamble +
		"Write %d structured study notes following the order of the material.\n" +
		`Schema: {"notes":[{"heading":"","body":"","key_points":[""]}]}`,
}
