package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// LLMConfig holds chat client settings.
type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Completer returns a JSON object answering userPrompt.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMClient wraps an OpenAI-compatible chat API.
type LLMClient struct {
	api       *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewLLMClient creates a client from config.
func NewLLMClient(cfg LLMConfig) (*LLMClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("analysis: llm: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 600
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = baseURL

	return &LLMClient{
		api:       openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}, nil
}

// CompleteJSON sends a single-shot prompt in JSON response mode.
func (c *LLMClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("analysis: llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("analysis: llm: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ Completer = (*LLMClient)(nil)

// decodeJSON unmarshals a model reply, tolerating a fenced code block.
func decodeJSON(reply string, v any) error {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), v); err != nil {
		return fmt.Errorf("analysis: llm: decode reply: %w", err)
	}
	return nil
}
