package whatsapp

import (
	"context"
	"fmt"
	"time"
)

// WhatsAppProvider is the outbound side of the gateway the bot runs behind.
type WhatsAppProvider interface {
	// SendText sends a plain text message from the session to a bare number
	// (or group JID).
	SendText(ctx context.Context, session, number, text string) (*SendResult, error)

	// SessionState returns the gateway's raw connection state of a session.
	SessionState(ctx context.Context, session string) (string, error)

	// GetProviderName return nama provider untuk logging
	GetProviderName() string
}

// SendResult is what the gateway told us about an accepted message.
type SendResult struct {
	MessageID string
	Status    string
}

// ProviderType untuk factory
type ProviderType string

const (
	ProviderEvolution ProviderType = "evolution"
	ProviderWAHA      ProviderType = "waha"
)

// ProviderConfig konfigurasi untuk provider
type ProviderConfig struct {
	Type ProviderType

	// Evolution API specific
	EvolutionBaseURL string
	EvolutionAPIKey  string

	// WAHA specific
	WAHABaseURL string
	WAHAAPIKey  string

	Timeout time.Duration
}

// NewProvider factory untuk create provider berdasarkan config
func NewProvider(cfg *ProviderConfig) (WhatsAppProvider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	switch cfg.Type {
	case ProviderEvolution:
		if cfg.EvolutionBaseURL == "" {
			return nil, fmt.Errorf("EVOLUTION_BASE_URL is required")
		}
		return NewEvolutionProvider(cfg.EvolutionBaseURL, cfg.EvolutionAPIKey, timeout), nil

	case ProviderWAHA:
		if cfg.WAHABaseURL == "" {
			return nil, fmt.Errorf("WAHA_BASE_URL is required")
		}
		return NewWAHAProvider(cfg.WAHABaseURL, cfg.WAHAAPIKey, timeout), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
