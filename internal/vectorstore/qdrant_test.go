package vectorstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/domain"
)

func newTestQdrant(t *testing.T, handler http.HandlerFunc) *QdrantStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	s, err := NewQdrantStore(QdrantConfig{
		URL:        server.URL,
		Collection: "ut_collection",
		Dimension:  2,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return s
}

func TestQdrantUpsertSendsPoints(t *testing.T) {
	var captured string
	s := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/points") {
			body, _ := io.ReadAll(r.Body)
			captured = string(body)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	ch := domain.Chunk{
		ID:         "doc-1:0",
		DocumentID: "doc-1",
		Text:       "hello",
		Source:     "notes",
		Embedding:  []float32{0.1, 0.2},
	}
	require.NoError(t, s.Upsert(context.Background(), []domain.Chunk{ch}))

	var body struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal([]byte(captured), &body))
	require.Len(t, body.Points, 1)
	assert.Equal(t, "doc-1:0", body.Points[0].Payload["chunk_id"])
	assert.Equal(t, "notes", body.Points[0].Payload["source"])
	// point id must be a UUID derived from the chunk id
	assert.Len(t, body.Points[0].ID, 36)
	assert.Equal(t, pointID("doc-1:0"), body.Points[0].ID)
}

func TestQdrantUpsertDimensionMismatch(t *testing.T) {
	s := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	err := s.Upsert(context.Background(), []domain.Chunk{{ID: "a", Embedding: []float32{1, 2, 3}}})
	require.Error(t, err)
	assert.Equal(t, domain.KindDimensionMismatch, domain.KindOf(err))
}

func TestQdrantQueryMapsPayload(t *testing.T) {
	s := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/points/search") {
			_, _ = w.Write([]byte(`{"status":"ok","result":[{"id":"x","score":0.92,"payload":{"chunk_id":"doc-1:1","document_id":"doc-1","chunk_index":1,"text":"world","source":"notes","metadata":{"lang":"en"}}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	results, err := s.Query(context.Background(), []float32{0.1, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1:1", results[0].Chunk.ID)
	assert.Equal(t, "world", results[0].Chunk.Text)
	assert.Equal(t, "notes", results[0].Chunk.Source)
	assert.Equal(t, 1, results[0].Chunk.Index)
	assert.Equal(t, "en", results[0].Chunk.Metadata["lang"])
	assert.InDelta(t, 0.92, results[0].Score, 1e-9)
}

func TestQdrantBackendDownIsIndexUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	s, err := NewQdrantStore(QdrantConfig{URL: server.URL, Collection: "c", Dimension: 2, HTTPClient: server.Client()})
	require.NoError(t, err)
	server.Close()

	_, qerr := s.Query(context.Background(), []float32{0.1, 0.2}, 1)
	require.Error(t, qerr)
	assert.Equal(t, domain.KindIndexUnavailable, domain.KindOf(qerr))
	assert.True(t, domain.IsTransient(qerr))
}

func TestQdrantDeleteAllDropsAndRecreates(t *testing.T) {
	var deletes, creates int
	s := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			deletes++
		case r.Method == http.MethodPut && !strings.Contains(r.URL.Path, "/points"):
			creates++
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	require.NoError(t, s.DeleteAll(context.Background()))
	require.NoError(t, s.DeleteAll(context.Background()))
	assert.Equal(t, 2, deletes)
	assert.GreaterOrEqual(t, creates, 2)
}

func TestQdrantCount(t *testing.T) {
	s := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/points/count") {
			_, _ = w.Write([]byte(`{"status":"ok","result":{"count":42}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}
