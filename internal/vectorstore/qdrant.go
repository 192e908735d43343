package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"assistant/internal/domain"
)

// QdrantStore is a vector index backed by the Qdrant REST API. The
// collection is created on first use with the configured dimensionality and
// distance; DeleteAll drops and recreates it.
type QdrantStore struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	collection string
	distance   string
	dimension  int

	mu      sync.Mutex
	ensured bool
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Dimension  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewQdrantStore creates a Qdrant-backed vector index.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, domain.E(domain.KindInvalidConfiguration, "qdrant url is missing")
	}
	if cfg.Dimension <= 0 {
		return nil, domain.E(domain.KindInvalidConfiguration, "index dimension must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = "assistant"
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &QdrantStore{
		client:     client,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   cfg.Distance,
		dimension:  cfg.Dimension,
	}, nil
}

// Name returns the collection name.
func (s *QdrantStore) Name() string { return s.collection }

// Dimension returns the index dimensionality.
func (s *QdrantStore) Dimension() int { return s.dimension }

// Upsert writes chunks as Qdrant points. Point IDs are UUIDs derived
// deterministically from the chunk ID, so re-ingesting the same chunk
// replaces the stored copy.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]map[string]any, 0, len(chunks))
	for _, ch := range chunks {
		if ch.ID == "" {
			return domain.E(domain.KindInvalidInput, "chunk id is empty")
		}
		if len(ch.Embedding) != s.dimension {
			return domain.E(domain.KindDimensionMismatch,
				fmt.Sprintf("chunk %s has dimension %d, index expects %d", ch.ID, len(ch.Embedding), s.dimension))
		}
		points = append(points, map[string]any{
			"id":     pointID(ch.ID),
			"vector": ch.Embedding,
			"payload": map[string]any{
				"chunk_id":    ch.ID,
				"document_id": ch.DocumentID,
				"chunk_index": ch.Index,
				"text":        ch.Text,
				"source":      ch.Source,
				"category":    ch.Category,
				"metadata":    ch.Metadata,
			},
		})
	}
	var resp operationResponse
	err := s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, &resp)
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return domain.E(domain.KindIndexUnavailable, "qdrant upsert rejected")
	}
	return nil
}

// Query runs a similarity search and maps point payloads back into chunks.
// Qdrant returns results in descending score order; that order is preserved.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK < 1 {
		return nil, domain.E(domain.KindInvalidInput, "topK must be at least 1")
	}
	if len(vector) != s.dimension {
		return nil, domain.E(domain.KindDimensionMismatch,
			fmt.Sprintf("query vector has dimension %d, index expects %d", len(vector), s.dimension))
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Status string `json:"status"`
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, item := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: chunkFromPayload(item.Payload),
			Score: item.Score,
		})
	}
	return results, nil
}

// DeleteAll drops the collection and recreates it empty. Dropping a missing
// collection is treated as success, which makes the operation idempotent.
func (s *QdrantStore) DeleteAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/collections/"+s.collection, nil)
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "building request failed", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "qdrant delete failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return domain.E(domain.KindIndexUnavailable, fmt.Sprintf("qdrant delete failed: %s", resp.Status))
	}
	s.mu.Lock()
	s.ensured = false
	s.mu.Unlock()
	return s.ensureCollection(ctx)
}

// Count returns the exact number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}
	var resp struct {
		Status string `json:"status"`
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": s.distance,
		},
	}
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/collections/"+s.collection, bytes.NewReader(data))
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "building request failed", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "qdrant unreachable", err)
	}
	_ = resp.Body.Close()
	// 409 means the collection already exists
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return domain.E(domain.KindIndexUnavailable, fmt.Sprintf("creating collection failed: %s", resp.Status))
	}
	s.ensured = true
	return nil
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return s.baseURL + "/collections/" + s.collection + suffix
}

func (s *QdrantStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

type operationResponse struct {
	Status string `json:"status"`
}

func (s *QdrantStore) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "encoding request failed", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "building request failed", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "qdrant unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.E(domain.KindIndexUnavailable, fmt.Sprintf("qdrant %s failed: %s", method, resp.Status))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.Wrap(domain.KindIndexUnavailable, "decoding response failed", err)
		}
	}
	return nil
}

// pointID derives a stable UUID from a chunk ID; Qdrant only accepts
// unsigned integers or UUIDs as point identifiers.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	ch := domain.Chunk{}
	if v, ok := payload["chunk_id"].(string); ok {
		ch.ID = v
	}
	if v, ok := payload["document_id"].(string); ok {
		ch.DocumentID = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		ch.Index = int(v)
	}
	if v, ok := payload["text"].(string); ok {
		ch.Text = v
	}
	if v, ok := payload["source"].(string); ok {
		ch.Source = v
	}
	if v, ok := payload["category"].(string); ok {
		ch.Category = v
	}
	if raw, ok := payload["metadata"].(map[string]any); ok {
		meta := make(map[string]string, len(raw))
		for k, v := range raw {
			if sv, ok := v.(string); ok {
				meta[k] = sv
			}
		}
		if len(meta) > 0 {
			ch.Metadata = meta
		}
	}
	return ch
}
