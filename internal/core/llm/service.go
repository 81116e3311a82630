package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Service wraps LLM provider untuk dependency injection
type Service struct {
	provider LLMProvider
}

// NewService creates the LLM service for the configured provider
func NewService(cfg *ProviderConfig) (*Service, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	log.Info().
		Str("provider", provider.GetProviderName()).
		Str("model", cfg.Model).
		Msg("🤖 LLM provider ready")

	return &Service{provider: provider}, nil
}

// NewServiceWithProvider creates service with custom provider (for testing)
func NewServiceWithProvider(provider LLMProvider) *Service {
	return &Service{provider: provider}
}

// Generate runs one completion. An empty user message is rejected before
// any network call is made.
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, fmt.Errorf("user message is empty")
	}
	return s.provider.Generate(ctx, req)
}

// GetProviderName returns current provider name
func (s *Service) GetProviderName() string {
	return s.provider.GetProviderName()
}
