package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EvolutionProvider sends through an Evolution API server.
type EvolutionProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewEvolutionProvider(baseURL, apiKey string, timeout time.Duration) *EvolutionProvider {
	return &EvolutionProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *EvolutionProvider) GetProviderName() string {
	return "Evolution API"
}

func (e *EvolutionProvider) SendText(ctx context.Context, session, number, text string) (*SendResult, error) {
	endpoint := fmt.Sprintf("%s/message/sendText/%s", e.baseURL, url.PathEscape(session))

	payload := map[string]interface{}{
		"number": number,
		"text":   text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("apikey", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("evolution returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		Status string `json:"status"`
	}
	// The body shape differs between Evolution versions; an unreadable body
	// on a 2xx still means the message was accepted.
	_ = json.Unmarshal(body, &result)

	return &SendResult{MessageID: result.Key.ID, Status: result.Status}, nil
}

func (e *EvolutionProvider) SessionState(ctx context.Context, session string) (string, error) {
	endpoint := fmt.Sprintf("%s/instance/connectionState/%s", e.baseURL, url.PathEscape(session))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if e.apiKey != "" {
		req.Header.Set("apikey", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("evolution returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Instance.State, nil
}
