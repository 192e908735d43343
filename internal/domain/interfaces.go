package domain

import "context"

// Document is the input unit for ingestion. It is created by the caller,
// never mutated, and discarded after chunking.
type Document struct {
	ID       string
	Source   string
	Category string
	Metadata map[string]string
	Text     string
}

// Chunk is a contiguous text span derived from a document. The embedding is
// attached after the embedding stage; before that it is nil.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Source     string
	Category   string
	Metadata   map[string]string
	Embedding  []float32
}

// SearchResult is a matching chunk with a relevance score. Higher is more
// relevant regardless of the underlying metric. Produced per query, never
// persisted.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// IndexStats is a read-only view of the vector index.
type IndexStats struct {
	TotalChunks int64
	Dimension   int
	IndexName   string
}

// Embedder converts text into a fixed-dimension vector representation.
// Embed is deterministic for a fixed model version, and every returned vector
// has length Dimension(). Empty input (after trimming) is an invalid_input
// error; implementations never substitute a zero vector on backend failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Chunker splits a document into ordered chunks suitable for standalone
// retrieval. Output is deterministic for identical input and configuration.
type Chunker interface {
	Chunk(doc Document) ([]Chunk, error)
}

// VectorStore is the access contract over the external vector index.
// Query returns results in descending score order; exact-score ties keep the
// store's native return order. DeleteAll is idempotent.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	Query(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Name() string
	Dimension() int
}

// CompletionRequest carries a fully assembled prompt to the language model.
// MaxTokens and Temperature are passed through unchanged.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// TextCompletionService is the opaque language-model backend.
type TextCompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Model() string
}
