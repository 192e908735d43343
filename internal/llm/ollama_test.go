package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/domain"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewOllamaClient(OllamaConfig{Host: server.URL, Model: "llama2", HTTPClient: server.Client()})
	require.NoError(t, err)
	return c
}

func TestOllamaCompleteSendsMessages(t *testing.T) {
	var captured ollamaChatRequest
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "forty-two"},
		})
	})

	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		System:      "You are a helpful assistant.",
		Prompt:      "What is the answer?",
		MaxTokens:   128,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "forty-two", out)

	assert.Equal(t, "llama2", captured.Model)
	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "What is the answer?", captured.Messages[1].Content)
	assert.Equal(t, 128, captured.Options.NumPredict)
	assert.InDelta(t, 0.2, captured.Options.Temperature, 1e-6)
}

func TestOllamaCompleteOmitsEmptySystem(t *testing.T) {
	var captured ollamaChatRequest
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Content: "ok"}})
	})

	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestOllamaCompleteRejectsEmptyPrompt(t *testing.T) {
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "  "})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestOllamaCompleteBackendError(t *testing.T) {
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, domain.KindGenerationUnavailable, domain.KindOf(err))
	assert.True(t, domain.IsTransient(err))
}

func TestOllamaCompleteReportsModelError(t *testing.T) {
	c := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Error: "model not found"})
	})
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, domain.KindGenerationUnavailable, domain.KindOf(err))
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaBackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, err := NewOllamaClient(OllamaConfig{Host: server.URL, Model: "llama2", HTTPClient: server.Client()})
	require.NoError(t, err)
	server.Close()

	_, cerr := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	require.Error(t, cerr)
	assert.Equal(t, domain.KindGenerationUnavailable, domain.KindOf(cerr))
}
