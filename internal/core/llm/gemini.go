package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

type GeminiProvider struct {
	apiKey  string
	baseURL string
	cfg     ProviderConfig
	client  *http.Client
}

func NewGeminiProvider(apiKey string, cfg *ProviderConfig) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     *cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *GeminiProvider) GetProviderName() string {
	return "Google Gemini"
}

// Gemini REST API request/response structures
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GeminiProvider) Generate(ctx context.Context, in Request) (*Response, error) {
	in = p.cfg.defaults(in)

	endpoint := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(in.Model), url.QueryEscape(p.apiKey))

	// For Gemini v1 API, system instruction should be part of the first user message
	userText := in.UserMessage
	if in.SystemPrompt != "" {
		userText = in.SystemPrompt + "\n\n" + in.UserMessage
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: userText}}, Role: "user"}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     *in.Temperature,
			MaxOutputTokens: in.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini error (model: %s, status: %d): %s", in.Model, resp.StatusCode, string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini (candidates: %d): %w", len(geminiResp.Candidates), ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	return &Response{
		Text:         sb.String(),
		InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		Provider:     p.GetProviderName(),
		Model:        in.Model,
	}, nil
}
