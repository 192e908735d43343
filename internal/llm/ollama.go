package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"assistant/internal/domain"
)

// OllamaClient generates completions through a local Ollama server using the
// non-streaming chat endpoint.
type OllamaClient struct {
	client *http.Client
	host   string
	model  string
}

// OllamaConfig configures an Ollama completion client.
type OllamaConfig struct {
	Host       string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error"`
}

// NewOllamaClient creates an Ollama-backed completion service.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	host := strings.TrimSuffix(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		return nil, domain.E(domain.KindInvalidConfiguration, "ollama model is missing")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OllamaClient{client: client, host: host, model: cfg.Model}, nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string { return c.model }

// Complete sends the system and user messages to Ollama and returns the
// generated text. Backend failures are reported as generation errors so the
// caller can distinguish them from bad input.
func (c *OllamaClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", domain.E(domain.KindInvalidInput, "prompt is empty")
	}
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return "", domain.Wrap(domain.KindGenerationUnavailable, "encoding request failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", domain.Wrap(domain.KindGenerationUnavailable, "building request failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", domain.Wrap(domain.KindGenerationUnavailable, "ollama unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.E(domain.KindGenerationUnavailable, fmt.Sprintf("ollama chat failed: %s", resp.Status))
	}
	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.Wrap(domain.KindGenerationUnavailable, "decoding response failed", err)
	}
	if out.Error != "" {
		return "", domain.E(domain.KindGenerationUnavailable, "ollama reported: "+out.Error)
	}
	return out.Message.Content, nil
}
