package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/assistant"
	"assistant/internal/chunker"
	"assistant/internal/domain"
	"assistant/internal/embedding"
	"assistant/internal/knowledge"
	"assistant/internal/vectorstore"
)

type echoLLM struct{}

func (echoLLM) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	return "echo: " + req.Prompt, nil
}

func (echoLLM) Model() string { return "echo" }

type downLLM struct{}

func (downLLM) Complete(context.Context, domain.CompletionRequest) (string, error) {
	return "", domain.E(domain.KindGenerationUnavailable, "model is down")
}

func (downLLM) Model() string { return "down" }

func newTestServer(t *testing.T, llm domain.TextCompletionService) *Server {
	t.Helper()
	emb, err := embedding.NewHashEmbedder(64)
	require.NoError(t, err)
	return newTestServerWith(t, llm, emb)
}

func newTestServerWith(t *testing.T, llm domain.TextCompletionService, emb domain.Embedder) *Server {
	t.Helper()
	store, err := vectorstore.NewMemoryStore("test", emb.Dimension())
	require.NoError(t, err)
	ck, err := chunker.NewDocumentChunker(500, 50)
	require.NoError(t, err)
	km, err := knowledge.NewManager(ck, emb, store, knowledge.Options{
		Retry: knowledge.RetryPolicy{BaseDelay: time.Millisecond},
	}, nil)
	require.NoError(t, err)
	o, err := assistant.New(km, llm, assistant.Options{
		ContextBudget: 4096,
		Counter:       func(s string) int { return len([]rune(s)) },
	}, nil)
	require.NoError(t, err)
	return NewServer(o, km, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, echoLLM{})
	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestIngestSearchRoundTrip(t *testing.T) {
	s := newTestServer(t, echoLLM{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/ingest", map[string]any{
		"source":   "handbook",
		"text":     "Employees accrue twenty vacation days per year.",
		"metadata": map[string]string{"lang": "en"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var ingested struct {
		ID            string `json:"id"`
		ChunksCreated int    `json:"chunks_created"`
		Status        string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingested))
	assert.NotEmpty(t, ingested.ID)
	assert.Equal(t, 1, ingested.ChunksCreated)
	assert.Equal(t, "success", ingested.Status)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/knowledge/search", map[string]any{
		"query": "Employees accrue twenty vacation days per year.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var searched struct {
		Results []struct {
			Text     string            `json:"text"`
			Source   string            `json:"source"`
			Metadata map[string]string `json:"metadata"`
			Score    float64           `json:"score"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searched))
	require.Len(t, searched.Results, 1)
	assert.Equal(t, "handbook", searched.Results[0].Source)
	assert.Equal(t, "en", searched.Results[0].Metadata["lang"])
	assert.InDelta(t, 1.0, searched.Results[0].Score, 1e-6)
}

// plannedEmbedder returns fixed vectors for known texts so scores are exact.
type plannedEmbedder struct {
	vectors map[string][]float32
}

func (e *plannedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (e *plannedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *plannedEmbedder) Dimension() int { return 2 }
func (e *plannedEmbedder) Model() string  { return "planned" }

func TestSearchHonorsExplicitZeroThreshold(t *testing.T) {
	// exact match scores 1.0, the orthogonal document scores exactly 0
	emb := &plannedEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0},
		"omega": {0, 1},
	}}
	s := newTestServerWith(t, echoLLM{}, emb)

	for _, text := range []string{"alpha", "omega"} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/ingest", map[string]any{
			"source": "handbook",
			"text":   text,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// default threshold keeps only the exact match
	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/search", map[string]any{
		"query": "alpha",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var searched struct {
		Results []struct {
			Score float64 `json:"score"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searched))
	require.Len(t, searched.Results, 1)

	// an explicit zero is honored, not treated as absent; the inclusive
	// bound admits the score-zero result
	rec = doJSON(t, s, http.MethodPost, "/api/v1/knowledge/search", map[string]any{
		"query":     "alpha",
		"threshold": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searched))
	assert.Len(t, searched.Results, 2)
}

func TestIngestRejectsEmptyText(t *testing.T) {
	s := newTestServer(t, echoLLM{})
	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/ingest", map[string]any{
		"source": "handbook",
		"text":   "  ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_input", body.Error.Kind)
	assert.NotEmpty(t, body.Error.Message)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t, echoLLM{})
	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatReturnsResponseAndSources(t *testing.T) {
	s := newTestServer(t, echoLLM{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/ingest", map[string]any{
		"source": "wiki",
		"text":   "The capital of France is Paris.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]any{
		"message": "The capital of France is Paris.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Response, "echo:")
	assert.Equal(t, []string{"wiki"}, body.Sources)
	assert.Equal(t, "echo", body.Model)
}

func TestChatWithKnowledgeBaseDisabled(t *testing.T) {
	s := newTestServer(t, echoLLM{})
	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]any{
		"message":            "hello",
		"use_knowledge_base": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "echo: hello", body.Response)
	assert.Empty(t, body.Sources)
}

func TestChatEmptyMessageIsBadRequest(t *testing.T) {
	s := newTestServer(t, echoLLM{})
	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]any{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatGenerationFailureIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t, downLLM{})
	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]any{"message": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "generation_backend_unavailable")
}

func TestStatsAndClear(t *testing.T) {
	s := newTestServer(t, echoLLM{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge/ingest", map[string]any{
		"source": "notes",
		"text":   "A small fact worth remembering.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/knowledge/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalChunks int64  `json:"total_chunks"`
		Dimension   int    `json:"dimension"`
		IndexName   string `json:"index_name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalChunks)
	assert.Equal(t, 64, stats.Dimension)
	assert.Equal(t, "test", stats.IndexName)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/knowledge/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared struct {
		Deleted bool `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.True(t, cleared.Deleted)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/knowledge/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(0), stats.TotalChunks)
}
