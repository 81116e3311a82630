package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion API.
// Groq and DeepSeek reuse it with their own base URL.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	cfg    ProviderConfig
}

func NewOpenAIProvider(apiKey string, cfg *ProviderConfig) *OpenAIProvider {
	return newCompatibleProvider("OpenAI", apiKey, "", cfg)
}

func newCompatibleProvider(name, apiKey, defaultBaseURL string, cfg *ProviderConfig) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	switch {
	case cfg.BaseURL != "":
		config.BaseURL = cfg.BaseURL
	case defaultBaseURL != "":
		config.BaseURL = defaultBaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		name:   name,
		cfg:    *cfg,
	}
}

func (p *OpenAIProvider) GetProviderName() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	req = p.cfg.defaults(req)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})

	// The client omits a zero temperature, which the API reads as its own
	// default of 1.
	temperature := *req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s error: %w", strings.ToLower(p.name), err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Provider:     p.name,
		Model:        req.Model,
	}, nil
}
