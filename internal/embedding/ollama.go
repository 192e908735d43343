package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"assistant/internal/domain"
)

// OllamaEmbedder produces embeddings through a local Ollama server.
type OllamaEmbedder struct {
	host      string
	model     string
	dimension int
	client    *http.Client
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimension  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewOllamaEmbedder creates an embedder backed by an Ollama server.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Dimension <= 0 {
		return nil, domain.E(domain.KindInvalidConfiguration, "embedding dimension must be positive")
	}
	host := strings.TrimSuffix(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OllamaEmbedder{host: host, model: cfg.Model, dimension: cfg.Dimension, client: client}, nil
}

// Dimension returns the declared output dimensionality.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Model returns the embedding model identifier.
func (e *OllamaEmbedder) Model() string { return e.model }

// Embed requests an embedding for one text from the Ollama API.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.E(domain.KindInvalidInput, "text is empty")
	}
	body, _ := json.Marshal(map[string]string{"model": e.model, "prompt": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, domain.Wrap(domain.KindEmbeddingUnavailable, "building request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindEmbeddingUnavailable, "embedding request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Wrap(domain.KindEmbeddingUnavailable, "embedding backend error",
			fmt.Errorf("status %d: %s", resp.StatusCode, payload))
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.Wrap(domain.KindEmbeddingUnavailable, "decoding response failed", err)
	}
	if len(out.Embedding) == 0 {
		return nil, domain.E(domain.KindEmbeddingUnavailable, "backend returned no embedding")
	}
	if len(out.Embedding) != e.dimension {
		return nil, domain.E(domain.KindDimensionMismatch,
			fmt.Sprintf("backend returned dimension %d, configured %d", len(out.Embedding), e.dimension))
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedBatch embeds texts one at a time; the Ollama embeddings endpoint
// accepts a single prompt per request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
