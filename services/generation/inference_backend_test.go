package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/digitalocean"
)

type fakeCompleter struct {
	response string
	err      error
	system   string
	user     string
}

func (f *fakeCompleter) JSONCompletion(_ context.Context, systemPrompt, userPrompt string, _ ...digitalocean.InferenceOption) (string, *digitalocean.InferenceUsage, error) {
	f.system = systemPrompt
	f.user = userPrompt
	if f.err != nil {
		return "", nil, f.err
	}
	return f.response, &digitalocean.InferenceUsage{TotalTokens: 10}, nil
}

func TestInferenceBackend_DecodesFencedJSON(t *testing.T) {
	client := &fakeCompleter{response: "Here you go:\n```json\n{\"notes\":[{\"heading\":\"Mitosis\",\"body\":\"Cell division\"}]}\n```"}
	b := NewInferenceBackend(client, nil, 0)

	got, err := b.Generate(context.Background(), Request{Stage: model.StageNotes, Text: "mitosis is...", ItemCount: 5})
	require.NoError(t, err)
	assert.Equal(t, model.StageNotes, got.Stage())
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "Mitosis", got.(*model.NoteSet).Notes[0].Heading)
	assert.Contains(t, client.system, "Write 5 structured study notes")
}

func TestInferenceBackend_TruncatesInput(t *testing.T) {
	client := &fakeCompleter{response: `{"mnemonics":[{"concept":"a","mnemonic":"b"}]}`}
	b := NewInferenceBackend(client, nil, 100)

	_, err := b.Generate(context.Background(), Request{Stage: model.StageMnemonics, Text: strings.Repeat("x", 1000), ItemCount: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(client.user), 100+len("Study material:\n\n"))
}

func TestInferenceBackend_Errors(t *testing.T) {
	b := NewInferenceBackend(&fakeCompleter{err: errors.New("inference API error (status 500): oops")}, nil, 0)
	_, err := b.Generate(context.Background(), Request{Stage: model.StageQuestions, ItemCount: 1})
	require.Error(t, err)
	typ, _ := ClassifyError(err)
	assert.Equal(t, ErrorTypeLLM, typ)

	b = NewInferenceBackend(&fakeCompleter{response: "I cannot help with that"}, nil, 0)
	_, err = b.Generate(context.Background(), Request{Stage: model.StageQuestions, ItemCount: 1})
	require.Error(t, err)
	typ, _ = ClassifyError(err)
	assert.Equal(t, ErrorTypeValidation, typ)
}

func TestInferenceBackend_RespectsRateLimiterCancellation(t *testing.T) {
	limiter := digitalocean.NewRateLimiter(digitalocean.RateLimiterConfig{MaxTokens: 1, RefillRate: 0.001})
	require.True(t, limiter.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewInferenceBackend(&fakeCompleter{response: `{}`}, limiter, 0)
	_, err := b.Generate(ctx, Request{Stage: model.StageNotes, ItemCount: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInferenceBackend_ThrottlePausesLimiter(t *testing.T) {
	limiter := digitalocean.NewRateLimiter(digitalocean.RateLimiterConfig{MaxTokens: 5, RefillRate: 100})
	b := NewInferenceBackend(&fakeCompleter{err: &digitalocean.APIError{StatusCode: 429, Body: "slow down"}}, limiter, 0)

	_, err := b.Generate(context.Background(), Request{Stage: model.StageNotes, ItemCount: 1})
	require.Error(t, err)
	assert.False(t, limiter.TryAcquire(), "limiter should be frozen after a 429")
}
