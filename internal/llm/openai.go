package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"assistant/internal/domain"
)

// OpenAIClient generates completions through the OpenAI chat API, or any
// compatible server when BaseURL points elsewhere.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures an OpenAI completion client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIClient creates an OpenAI-backed completion service.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.E(domain.KindInvalidConfiguration, "openai api key is missing")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends the request as a chat completion and returns the first
// choice.
func (c *OpenAIClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", domain.E(domain.KindInvalidInput, "prompt is empty")
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", domain.Wrap(domain.KindGenerationUnavailable, "openai chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.E(domain.KindGenerationUnavailable, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
