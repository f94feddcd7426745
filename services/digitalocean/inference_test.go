package digitalocean

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferenceClient_JSONCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, 2048, req.MaxTokens)
		if assert.NotNil(t, req.ResponseFormat) {
			assert.Equal(t, "json_object", req.ResponseFormat.Type)
		}
		assert.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, "valid JSON only")

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"notes\":[]}"},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	c := NewInferenceClient(InferenceConfig{APIKey: "secret", BaseURL: srv.URL, Model: "test-model", Timeout: time.Second})
	content, usage, err := c.JSONCompletion(context.Background(), "system", "user", WithInferenceMaxTokens(2048))
	require.NoError(t, err)
	assert.Equal(t, `{"notes":[]}`, content)
	assert.Equal(t, 42, usage.TotalTokens)
}

func TestInferenceClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewInferenceClient(InferenceConfig{BaseURL: srv.URL})
	_, _, err := c.JSONCompletion(context.Background(), "s", "u")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "status 429")
	assert.True(t, apiErr.Retryable())
}

func TestInferenceClient_Truncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"notes\":["},"finish_reason":"length"}]}`))
	}))
	defer srv.Close()

	c := NewInferenceClient(InferenceConfig{BaseURL: srv.URL})
	_, _, err := c.JSONCompletion(context.Background(), "s", "u", WithInferenceMaxTokens(64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated at 64")
}

func TestInferenceClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewInferenceClient(InferenceConfig{BaseURL: srv.URL})
	_, _, err := c.JSONCompletion(context.Background(), "s", "u")
	assert.Error(t, err)
}
