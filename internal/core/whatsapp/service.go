package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrEmptyRecipient = errors.New("recipient is empty")

// Service wraps the configured gateway provider.
type Service struct {
	provider WhatsAppProvider
}

// NewService creates the service for the configured provider
func NewService(cfg *ProviderConfig) (*Service, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	log.Info().Str("provider", provider.GetProviderName()).Msg("✅ WhatsApp gateway ready")

	return &Service{provider: provider}, nil
}

// NewServiceWithProvider creates service with custom provider (for testing)
func NewServiceWithProvider(provider WhatsAppProvider) *Service {
	return &Service{provider: provider}
}

// SendText sends text to the chat identified by jid from the given session.
// The JID is reduced to a bare number before it reaches the gateway.
func (s *Service) SendText(ctx context.Context, session, jid, text string) (*SendResult, error) {
	number := NormalizeNumber(jid)
	if number == "" {
		return nil, ErrEmptyRecipient
	}
	if strings.TrimSpace(session) == "" {
		return nil, fmt.Errorf("session is empty")
	}
	return s.provider.SendText(ctx, session, number, text)
}

// SessionState returns the raw gateway state of the session.
func (s *Service) SessionState(ctx context.Context, session string) (string, error) {
	return s.provider.SessionState(ctx, session)
}

// GetProviderName returns current provider name
func (s *Service) GetProviderName() string {
	return s.provider.GetProviderName()
}
