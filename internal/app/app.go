package app

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"assistant/internal/assistant"
	"assistant/internal/chunker"
	"assistant/internal/config"
	"assistant/internal/domain"
	"assistant/internal/embedding"
	"assistant/internal/knowledge"
	"assistant/internal/llm"
	"assistant/internal/vectorstore"
)

// Components holds the assembled application core shared by the HTTP server
// and the chat TUI.
type Components struct {
	Knowledge *knowledge.Manager
	Assistant *assistant.Orchestrator
}

// Build assembles the embedder, vector store, knowledge manager, completion
// backend and orchestrator from the config.
func Build(cfg *config.AppConfig, log *zap.Logger) (*Components, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := buildVectorStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	ck, err := chunker.NewDocumentChunker(cfg.Chunker.MaxChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	km, err := knowledge.NewManager(ck, emb, store, knowledge.Options{
		DefaultTopK:      cfg.Search.TopK,
		DefaultThreshold: cfg.Search.Threshold,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("knowledge manager: %w", err)
	}
	completion, err := buildLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	orch, err := assistant.New(km, completion, assistant.Options{
		ContextBudget: cfg.LLM.ContextBudgetTokens,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return &Components{Knowledge: km, Assistant: orch}, nil
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hash", "":
		return embedding.NewHashEmbedder(cfg.Embedder.Dimension)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:    os.Getenv(cfg.Embedder.OpenAI.APIKeyEnv),
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			Model:     cfg.Embedder.Model,
			Dimension: cfg.Embedder.Dimension,
			BatchSize: cfg.Embedder.BatchSize,
		})
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			return nil, fmt.Errorf("ollama embedder config missing")
		}
		return embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			Host:      cfg.Embedder.Ollama.Host,
			Model:     cfg.Embedder.Model,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   time.Duration(cfg.Embedder.Ollama.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildVectorStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return vectorstore.NewMemoryStore("memory", cfg.Embedder.Dimension)
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		q := cfg.VectorStore.Qdrant
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:        q.URL,
			APIKey:     os.Getenv(q.APIKeyEnv),
			Collection: q.Collection,
			Distance:   q.Distance,
			Dimension:  cfg.Embedder.Dimension,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildLLM(cfg *config.AppConfig) (domain.TextCompletionService, error) {
	switch cfg.LLM.Type {
	case "ollama", "":
		return llm.NewOllamaClient(llm.OllamaConfig{
			Host:    cfg.LLM.Host,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		})
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey: os.Getenv(cfg.LLM.APIKeyEnv),
			Model:  cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.LLM.Type)
	}
}
