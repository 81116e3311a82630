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

type WAHAProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewWAHAProvider(baseURL, apiKey string, timeout time.Duration) *WAHAProvider {
	return &WAHAProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *WAHAProvider) GetProviderName() string {
	return "WAHA"
}

func (w *WAHAProvider) SendText(ctx context.Context, session, number, text string) (*SendResult, error) {
	// Format: 628123456789@c.us
	chatID := number
	if !strings.Contains(chatID, "@") {
		chatID = number + "@c.us"
	}

	payload := map[string]interface{}{
		"session": session,
		"chatId":  chatID,
		"text":    text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/api/sendText", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("X-Api-Key", w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("WAHA returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(body, &result)

	return &SendResult{MessageID: wahaMessageID(result.ID)}, nil
}

// wahaMessageID accepts both "id": "..." and "id": {"_serialized": "..."}.
func wahaMessageID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Serialized string `json:"_serialized"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Serialized
	}
	return ""
}

func (w *WAHAProvider) SessionState(ctx context.Context, session string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/sessions/%s", w.baseURL, url.PathEscape(session))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	if w.apiKey != "" {
		req.Header.Set("X-Api-Key", w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("WAHA returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Status string `json:"status"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Status, nil
}
