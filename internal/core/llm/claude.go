package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const claudeBaseURL = "https://api.anthropic.com"

type ClaudeProvider struct {
	apiKey  string
	baseURL string
	cfg     ProviderConfig
	client  *http.Client
}

func NewClaudeProvider(apiKey string, cfg *ProviderConfig) *ClaudeProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = claudeBaseURL
	}
	return &ClaudeProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     *cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *ClaudeProvider) GetProviderName() string {
	return "Anthropic Claude"
}

// Claude API request/response structures
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *ClaudeProvider) Generate(ctx context.Context, in Request) (*Response, error) {
	in = p.cfg.defaults(in)

	reqBody := claudeRequest{
		Model:       in.Model,
		MaxTokens:   in.MaxTokens,
		Temperature: *in.Temperature,
		Messages:    []claudeMessage{{Role: "user", Content: in.UserMessage}},
		System:      in.SystemPrompt,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claude error (model: %s, status: %d): %s", in.Model, resp.StatusCode, string(body))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, fmt.Errorf("claude: %w", ErrEmptyResponse)
	}

	return &Response{
		Text:         sb.String(),
		InputTokens:  claudeResp.Usage.InputTokens,
		OutputTokens: claudeResp.Usage.OutputTokens,
		Provider:     p.GetProviderName(),
		Model:        in.Model,
	}, nil
}
