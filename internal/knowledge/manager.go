package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"assistant/internal/domain"
)

// Manager orchestrates the chunker, embedder and vector index. It owns the
// retrieval policy (top-K and similarity threshold) and the retry policy for
// transient backend failures.
//
// A document moves through received -> chunked -> embedded -> stored, or
// fails at any stage with the reason attached. Concurrent ingest and search
// against the same index are both permitted; a search racing an in-flight
// ingest may or may not observe the new chunks (eventual visibility).
type Manager struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	store    domain.VectorStore
	defaults SearchParams
	retry    RetryPolicy
	log      *zap.Logger
}

// SearchParams controls one retrieval request. Threshold is an inclusive
// lower bound on the similarity score.
type SearchParams struct {
	TopK      int
	Threshold float64
}

// Options configures a Manager.
type Options struct {
	DefaultTopK      int
	DefaultThreshold float64
	Retry            RetryPolicy
}

// IngestResult reports the outcome of one document ingestion. Chunk-level
// failures do not abort the batch; each failed chunk is listed so partial
// ingestion is visible to the caller.
type IngestResult struct {
	DocumentID    string
	ChunksCreated int
	Failed        []ChunkFailure
}

// ChunkFailure records why a single chunk did not reach the index.
type ChunkFailure struct {
	ChunkID string
	Stage   string
	Reason  string
}

// NewManager wires the ingestion and search pipeline. The embedder's
// declared dimensionality must match the index; a mismatch is configuration
// drift and is rejected up front rather than discovered mid-ingest.
func NewManager(chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, opts Options, log *zap.Logger) (*Manager, error) {
	if embedder.Dimension() != store.Dimension() {
		return nil, domain.E(domain.KindDimensionMismatch,
			fmt.Sprintf("embedder produces dimension %d but index %q expects %d",
				embedder.Dimension(), store.Name(), store.Dimension()))
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.DefaultThreshold == 0 {
		opts.DefaultThreshold = 0.7
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		defaults: SearchParams{TopK: opts.DefaultTopK, Threshold: opts.DefaultThreshold},
		retry:    opts.Retry.withDefaults(),
		log:      log,
	}, nil
}

// Defaults returns the configured retrieval policy.
func (m *Manager) Defaults() SearchParams { return m.defaults }

// Ingest chunks, embeds and stores a document. Chunks are embedded and
// upserted in the chunker's emission order. Embed and upsert failures are
// retried when transient; a chunk that still fails is recorded and the rest
// of the batch continues. The error is non-nil only when the document is
// invalid or no chunk could be stored at all.
func (m *Manager) Ingest(ctx context.Context, doc domain.Document) (IngestResult, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return IngestResult{}, domain.E(domain.KindInvalidInput, "document text is empty")
	}
	if strings.TrimSpace(doc.Source) == "" {
		return IngestResult{}, domain.E(domain.KindInvalidInput, "document source is empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	res := IngestResult{DocumentID: doc.ID}

	chunks, err := m.chunker.Chunk(doc)
	if err != nil {
		m.log.Warn("document failed at chunking", zap.String("document_id", doc.ID), zap.Error(err))
		return res, err
	}
	m.log.Debug("document chunked",
		zap.String("document_id", doc.ID),
		zap.String("source", doc.Source),
		zap.Int("chunks", len(chunks)))

	var firstErr error
	for _, ch := range chunks {
		ch := ch
		err := m.retry.Do(ctx, func(ctx context.Context) error {
			vec, err := m.embedder.Embed(ctx, ch.Text)
			if err != nil {
				return err
			}
			ch.Embedding = vec
			return nil
		})
		if err != nil {
			res.Failed = append(res.Failed, ChunkFailure{ChunkID: ch.ID, Stage: "embed", Reason: reason(err)})
			m.log.Warn("chunk failed at embedding", zap.String("chunk_id", ch.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		err = m.retry.Do(ctx, func(ctx context.Context) error {
			return m.store.Upsert(ctx, []domain.Chunk{ch})
		})
		if err != nil {
			res.Failed = append(res.Failed, ChunkFailure{ChunkID: ch.ID, Stage: "store", Reason: reason(err)})
			m.log.Warn("chunk failed at storing", zap.String("chunk_id", ch.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.ChunksCreated++
	}

	if res.ChunksCreated == 0 && firstErr != nil {
		return res, firstErr
	}
	m.log.Info("document stored",
		zap.String("document_id", doc.ID),
		zap.String("source", doc.Source),
		zap.Int("chunks_created", res.ChunksCreated),
		zap.Int("chunks_failed", len(res.Failed)))
	return res, nil
}

// Search embeds the query and returns results at or above the threshold
// (inclusive lower bound), truncated to top-K after filtering. Because the
// index returns results in descending score order, passing results always
// form a prefix, so fetching top-K candidates is sufficient. Exact-score
// ties keep the index's native return order; this is the only place ties
// are resolved implicitly.
func (m *Manager) Search(ctx context.Context, query string, params SearchParams) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.E(domain.KindInvalidInput, "query is empty")
	}
	if params.TopK <= 0 {
		params.TopK = m.defaults.TopK
	}

	var vec []float32
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = m.embedder.Embed(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	var results []domain.SearchResult
	err = m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		results, err = m.store.Query(ctx, vec, params.TopK)
		return err
	})
	if err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= params.Threshold {
			filtered = append(filtered, r)
		}
	}
	m.log.Debug("search completed",
		zap.Int("candidates", len(results)),
		zap.Int("passing", len(filtered)),
		zap.Float64("threshold", params.Threshold))
	return filtered, nil
}

// Clear removes every chunk from the index. It is idempotent.
func (m *Manager) Clear(ctx context.Context) error {
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		return m.store.DeleteAll(ctx)
	})
	if err != nil {
		return err
	}
	m.log.Info("knowledge base cleared", zap.String("index", m.store.Name()))
	return nil
}

// Stats returns a read-only view of the index.
func (m *Manager) Stats(ctx context.Context) (domain.IndexStats, error) {
	var count int64
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = m.store.Count(ctx)
		return err
	})
	if err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{
		TotalChunks: count,
		Dimension:   m.store.Dimension(),
		IndexName:   m.store.Name(),
	}, nil
}

func reason(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
