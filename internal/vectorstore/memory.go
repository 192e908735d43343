package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"assistant/internal/domain"
)

// MemoryStore is an in-process vector index using brute-force cosine
// similarity. It is the default backend for local use and tests; the mutex
// makes concurrent search and ingest safe, with eventual visibility of
// in-flight ingests (a search racing an ingest may or may not observe the
// new chunks).
type MemoryStore struct {
	mu        sync.RWMutex
	name      string
	dimension int
	order     []string
	chunks    map[string]domain.Chunk
}

// NewMemoryStore creates an empty in-memory index with a fixed
// dimensionality.
func NewMemoryStore(name string, dimension int) (*MemoryStore, error) {
	if dimension <= 0 {
		return nil, domain.E(domain.KindInvalidConfiguration, "index dimension must be positive")
	}
	if name == "" {
		name = "memory"
	}
	return &MemoryStore{
		name:      name,
		dimension: dimension,
		chunks:    make(map[string]domain.Chunk),
	}, nil
}

// Name returns the index name.
func (s *MemoryStore) Name() string { return s.name }

// Dimension returns the index dimensionality.
func (s *MemoryStore) Dimension() int { return s.dimension }

// Upsert stores chunks keyed by chunk ID, replacing existing entries.
func (s *MemoryStore) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "upsert cancelled", err)
	}
	for _, ch := range chunks {
		if ch.ID == "" {
			return domain.E(domain.KindInvalidInput, "chunk id is empty")
		}
		if len(ch.Embedding) != s.dimension {
			return domain.E(domain.KindDimensionMismatch,
				fmt.Sprintf("chunk %s has dimension %d, index expects %d", ch.ID, len(ch.Embedding), s.dimension))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if _, ok := s.chunks[ch.ID]; !ok {
			s.order = append(s.order, ch.ID)
		}
		s.chunks[ch.ID] = ch
	}
	return nil
}

// Query returns up to topK results in descending cosine-similarity order.
// Exact-score ties keep insertion order.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.KindIndexUnavailable, "query cancelled", err)
	}
	if topK < 1 {
		return nil, domain.E(domain.KindInvalidInput, "topK must be at least 1")
	}
	if len(vector) != s.dimension {
		return nil, domain.E(domain.KindDimensionMismatch,
			fmt.Sprintf("query vector has dimension %d, index expects %d", len(vector), s.dimension))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		ch := s.chunks[id]
		results = append(results, domain.SearchResult{Chunk: ch, Score: cosine(ch.Embedding, vector)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// DeleteAll removes every chunk. Calling it on an empty index is a no-op.
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindIndexUnavailable, "delete cancelled", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.chunks = make(map[string]domain.Chunk)
	return nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.Wrap(domain.KindIndexUnavailable, "count cancelled", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.order)), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
