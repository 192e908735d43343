package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"assistant/internal/domain"
)

// OpenAIEmbedder produces embeddings through the OpenAI embeddings API or
// any compatible endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// OpenAIConfig configures the OpenAI embedder. Dimension is the declared
// output dimensionality; a backend that returns vectors of a different
// length indicates configuration drift and is rejected.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, domain.E(domain.KindInvalidConfiguration, "openai api key is missing")
	}
	if cfg.Dimension <= 0 {
		return nil, domain.E(domain.KindInvalidConfiguration, "embedding dimension must be positive")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Dimension returns the declared output dimensionality.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Model returns the embedding model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in API-sized batches, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.E(domain.KindInvalidInput, "text is empty")
		}
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[i:end],
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimension,
		})
		if err != nil {
			return nil, domain.Wrap(domain.KindEmbeddingUnavailable, "embedding request failed", err)
		}
		if len(resp.Data) != end-i {
			return nil, domain.E(domain.KindEmbeddingUnavailable,
				fmt.Sprintf("backend returned %d embeddings for %d inputs", len(resp.Data), end-i))
		}
		for _, d := range resp.Data {
			if len(d.Embedding) != e.dimension {
				return nil, domain.E(domain.KindDimensionMismatch,
					fmt.Sprintf("backend returned dimension %d, configured %d", len(d.Embedding), e.dimension))
			}
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}
