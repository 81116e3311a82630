package services

import (
	"context"
	"errors"
	"strings"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/intent"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/rs/zerolog"
)

var errNoGenerator = errors.New("no AI backend configured")

type reply struct {
	Text            string
	Source          string
	Intent          string
	Provider        string
	Tokens          int
	GenerationError string
}

// chooseReply matches intents first and falls back to the AI backend when
// the chatbot allows it. ok is false when nothing should be sent.
func (s *WebhookService) chooseReply(ctx context.Context, tc *tenant.Context, text string, logger zerolog.Logger) (*reply, bool) {
	bot := tc.Chatbot

	if match, ok := s.matcher.Match(IntentRules(bot.Intents), text); ok && strings.TrimSpace(match.Response) != "" {
		logger.Info().Str("intent", match.Rule.Name).Str("pattern", match.Pattern).Msg("🎯 Intent matched")
		return &reply{Text: match.Response, Source: SourceIntent, Intent: match.Rule.Name}, true
	}

	if !bot.FallbackEnabled {
		return nil, false
	}

	resp, err := s.generate(ctx, tc, text)
	if err == nil {
		logger.Info().
			Str("provider", resp.Provider).
			Int("input_tokens", resp.InputTokens).
			Int("output_tokens", resp.OutputTokens).
			Msg("🤖 AI reply generated")
		return &reply{
			Text:     resp.Text,
			Source:   SourceAI,
			Provider: resp.Provider,
			Tokens:   resp.TotalTokens(),
		}, true
	}

	s.alerts.Emit(ctx, alert.Alert{
		Severity:       alert.SeverityMedium,
		Category:       alert.CategoryAPIFailure,
		Message:        "AI backend failed, sending fallback reply",
		OrganizationID: &tc.Organization.ID,
		Error:          err.Error(),
		Metadata:       alert.Metadata(map[string]interface{}{"chatbot_id": bot.ID.String()}),
	})

	apology := strings.TrimSpace(bot.FallbackReply)
	if apology == "" {
		apology = s.cfg.FallbackReply
	}
	return &reply{Text: apology, Source: SourceFallback, GenerationError: err.Error()}, true
}

func (s *WebhookService) generate(ctx context.Context, tc *tenant.Context, text string) (*llm.Response, error) {
	if s.generator == nil {
		return nil, errNoGenerator
	}

	bot := tc.Chatbot
	topics := make([]string, 0, len(bot.Intents))
	for _, in := range bot.Intents {
		if in.IsActive {
			topics = append(topics, in.Name)
		}
	}

	resp, err := s.generator.Generate(ctx, llm.Request{
		SystemPrompt: llm.BuildSystemPrompt(llm.Profile{
			BusinessName: tc.Organization.Name,
			BotName:      bot.Name,
			SystemPrompt: bot.SystemPrompt,
			Topics:       topics,
		}),
		UserMessage: text,
		Model:       bot.Model,
		Temperature: bot.Temperature,
		MaxTokens:   bot.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, llm.ErrEmptyResponse
	}
	return resp, nil
}

// IntentRules converts stored intents into matcher rules.
func IntentRules(intents []models.Intent) []intent.Rule {
	rules := make([]intent.Rule, 0, len(intents))
	for _, in := range intents {
		rules = append(rules, intent.Rule{
			ID:        in.ID.String(),
			Name:      in.Name,
			Patterns:  in.Patterns,
			Responses: in.Responses,
			Position:  in.Position,
			Active:    in.IsActive,
		})
	}
	return rules
}
