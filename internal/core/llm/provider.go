package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from AI provider")

// LLMProvider is implemented by every AI backend.
type LLMProvider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	GetProviderName() string
}

// Request is one generation call built from the chatbot configuration.
// Empty Model, nil Temperature and zero MaxTokens fall back to the provider
// defaults. An explicit zero temperature is kept.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Model        string
	Temperature  *float32
	MaxTokens    int
}

// DefaultTemperature applies when neither the request nor the provider
// config sets one.
const DefaultTemperature float32 = 0.7

// Temperature returns a pointer to v for Request.Temperature.
func Temperature(v float32) *float32 {
	return &v
}

// Response is the generated text and the token usage the backend reported.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Provider     string
	Model        string
}

func (r *Response) TotalTokens() int {
	if r == nil {
		return 0
	}
	return r.InputTokens + r.OutputTokens
}

// ProviderType selects the backend in NewProvider.
type ProviderType string

const (
	ProviderOpenAI   ProviderType = "openai"
	ProviderGemini   ProviderType = "gemini"
	ProviderGroq     ProviderType = "groq"
	ProviderDeepSeek ProviderType = "deepseek"
	ProviderClaude   ProviderType = "claude"
)

// ProviderConfig configures NewProvider.
type ProviderConfig struct {
	Type ProviderType

	// API Keys
	OpenAIKey   string
	GeminiKey   string
	GroqKey     string
	DeepSeekKey string
	ClaudeKey   string

	// Model configs
	Model       string
	Temperature *float32
	MaxTokens   int

	// BaseURL overrides the provider endpoint (proxies, tests).
	BaseURL string
	Timeout time.Duration
}

// NewProvider builds the backend selected by cfg.Type.
func NewProvider(cfg *ProviderConfig) (LLMProvider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Type)
	}

	switch cfg.Type {
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		return NewOpenAIProvider(cfg.OpenAIKey, cfg), nil

	case ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required")
		}
		return NewGeminiProvider(cfg.GeminiKey, cfg), nil

	case ProviderGroq:
		if cfg.GroqKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is required")
		}
		return NewGroqProvider(cfg.GroqKey, cfg), nil

	case ProviderDeepSeek:
		if cfg.DeepSeekKey == "" {
			return nil, fmt.Errorf("DEEPSEEK_API_KEY is required")
		}
		return NewDeepSeekProvider(cfg.DeepSeekKey, cfg), nil

	case ProviderClaude:
		if cfg.ClaudeKey == "" {
			return nil, fmt.Errorf("CLAUDE_API_KEY is required")
		}
		return NewClaudeProvider(cfg.ClaudeKey, cfg), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s", cfg.Type)
	}
}

// DefaultModel returns the model used when neither the chatbot nor
// LLM_MODEL names one.
func DefaultModel(t ProviderType) string {
	switch t {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderGroq:
		return "llama-3.1-8b-instant"
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderClaude:
		return "claude-3-5-sonnet-20241022"
	}
	return ""
}

// defaults fills the request from the provider config.
func (c *ProviderConfig) defaults(req Request) Request {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.Temperature == nil {
		req.Temperature = c.Temperature
	}
	if req.Temperature == nil {
		req.Temperature = Temperature(DefaultTemperature)
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.MaxTokens
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 500
	}
	return req
}
