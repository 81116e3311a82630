package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/dedup"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/intent"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/repositories"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrAPIFailure        = errors.New("external api failure")
)

// Outcome is how far one delivery got through the pipeline.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeNotBilled   Outcome = "not_billed"
	OutcomeUndelivered Outcome = "undelivered"
	OutcomeReplied     Outcome = "replied"
)

// Reply sources stored in outbound message metadata
const (
	SourceIntent   = "intent"
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

type TenantResolver interface {
	Resolve(ctx context.Context, in tenant.Lookup) (*tenant.Context, error)
}

type ReplyGenerator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
	GetProviderName() string
}

type MessageSender interface {
	SendText(ctx context.Context, session, jid, text string) (*whatsapp.SendResult, error)
}

type UsageMeter interface {
	Charge(ctx context.Context, c billing.Charge) (*billing.ChargeResult, error)
}

type AlertEmitter interface {
	Emit(ctx context.Context, a alert.Alert)
}

// WebhookConfig tunes the pipeline.
type WebhookConfig struct {
	// FallbackReply is sent when the AI backend fails and the chatbot has
	// no apology text of its own.
	FallbackReply   string
	PipelineTimeout time.Duration
}

// Delivery is a resolved message event ready for processing.
type Delivery struct {
	CorrelationID string
	Event         *whatsapp.MessageUpsert
	Tenant        *tenant.Context
}

// WebhookService runs inbound messages through persist, match/generate,
// bill and dispatch.
type WebhookService struct {
	resolver  TenantResolver
	messages  repositories.MessageRepo
	devices   repositories.DeviceRepo
	seen      dedup.Cache
	matcher   *intent.Matcher
	generator ReplyGenerator
	meter     UsageMeter
	sender    MessageSender
	alerts    AlertEmitter
	cfg       WebhookConfig
	log       zerolog.Logger

	wg sync.WaitGroup
}

// NewWebhookService creates a new webhook service. A nil seen cache
// disables the fast duplicate check.
func NewWebhookService(
	resolver TenantResolver,
	messages repositories.MessageRepo,
	devices repositories.DeviceRepo,
	seen dedup.Cache,
	matcher *intent.Matcher,
	generator ReplyGenerator,
	meter UsageMeter,
	sender MessageSender,
	alerts AlertEmitter,
	cfg WebhookConfig,
	logger zerolog.Logger,
) *WebhookService {
	if seen == nil {
		seen = dedup.NewNoopCache()
	}
	if matcher == nil {
		matcher = intent.NewMatcher()
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 90 * time.Second
	}
	return &WebhookService{
		resolver:  resolver,
		messages:  messages,
		devices:   devices,
		seen:      seen,
		matcher:   matcher,
		generator: generator,
		meter:     meter,
		sender:    sender,
		alerts:    alerts,
		cfg:       cfg,
		log:       logger.With().Str("component", "webhook").Logger(),
	}
}

// ShouldIgnore reports whether a message event is acknowledged without
// processing: echoes of our own sends and events without text.
func ShouldIgnore(evt *whatsapp.MessageUpsert) bool {
	return evt.FromMe || strings.TrimSpace(evt.Text) == ""
}

// Resolve maps the receiving instance to its tenant. Resolution failures
// are alerted here so the handler only has to pick the status code.
func (s *WebhookService) Resolve(ctx context.Context, evt *whatsapp.MessageUpsert) (*tenant.Context, error) {
	tc, err := s.resolver.Resolve(ctx, tenant.Lookup{InstanceID: evt.InstanceID, Instance: evt.Instance})
	if err == nil {
		return tc, nil
	}

	a := alert.Alert{
		Phone:    evt.RemoteJID,
		Error:    err.Error(),
		Metadata: alert.Metadata(map[string]interface{}{
			"instance":    evt.Instance,
			"instance_id": evt.InstanceID,
			"external_id": evt.ExternalID,
		}),
	}
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		a.Severity, a.Category = alert.SeverityCritical, alert.CategoryTenantNotFound
		a.Message = "No tenant for gateway instance"
	case errors.Is(err, tenant.ErrNoActiveChatbot):
		a.Severity, a.Category = alert.SeverityCritical, alert.CategoryNoActiveChatbot
		a.Message = "Organization has no active chatbot"
	default:
		a.Severity, a.Category = alert.SeverityHigh, alert.CategoryPersistenceFailed
		a.Message = "Tenant lookup failed"
		err = fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	s.alerts.Emit(ctx, a)
	return nil, err
}

// Dispatch processes the delivery on its own goroutine, bounded by the
// pipeline timeout.
func (s *WebhookService) Dispatch(d Delivery) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PipelineTimeout)
		defer cancel()
		ctx = utils.WithCorrelationID(ctx, d.CorrelationID)

		outcome, err := s.Process(ctx, d)
		evt := s.log.Info()
		if err != nil {
			evt = s.log.Warn().Err(err)
		}
		evt.Str("correlation_id", d.CorrelationID).
			Str("external_id", d.Event.ExternalID).
			Str("outcome", string(outcome)).
			Msg("📨 Delivery processed")
	}()
}

// Wait blocks until every dispatched delivery has finished.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

// Process runs one resolved delivery to completion. Steps run strictly in
// order: persist inbound, choose reply, persist outbound, bill, send.
func (s *WebhookService) Process(ctx context.Context, d Delivery) (Outcome, error) {
	evt := d.Event
	if d.CorrelationID != "" && utils.CorrelationID(ctx) == "" {
		ctx = utils.WithCorrelationID(ctx, d.CorrelationID)
	}
	if ShouldIgnore(evt) {
		return OutcomeIgnored, nil
	}

	org := d.Tenant.Organization
	bot := d.Tenant.Chatbot
	logger := s.log.With().
		Str("correlation_id", utils.CorrelationID(ctx)).
		Str("organization_id", org.ID.String()).
		Str("external_id", evt.ExternalID).
		Logger()

	if seen, err := s.seen.Seen(ctx, evt.ExternalID); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Dedup cache unavailable, relying on database")
	} else if seen {
		logger.Info().Msg("🔁 Duplicate delivery (cache)")
		return OutcomeDuplicate, nil
	}

	// 1. Persist inbound
	inbound, created, err := s.messages.Upsert(ctx, &models.Message{
		OrganizationID: org.ID,
		DeviceID:       d.Tenant.Device.RefID(),
		ChatbotID:      &bot.ID,
		Direction:      models.DirectionInbound,
		Counterparty:   evt.RemoteJID,
		Content:        evt.Text,
		ExternalID:     evt.ExternalID,
		CorrelationID:  utils.CorrelationID(ctx),
		Metadata: alert.Metadata(map[string]interface{}{
			"push_name":      evt.PushName,
			"instance":       evt.Instance,
			"timestamp":      evt.Timestamp,
			"virtual_device": d.Tenant.Device.Virtual,
		}),
	})
	if err != nil {
		return "", s.persistenceFailed(ctx, org.ID, evt.RemoteJID, "Failed to persist inbound message", err)
	}
	if err := s.seen.Mark(ctx, evt.ExternalID); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Failed to mark message as seen")
	}
	if !created {
		logger.Info().Msg("🔁 Duplicate delivery (database)")
		return OutcomeDuplicate, nil
	}
	logger.Info().Str("message_id", inbound.ID.String()).Msg("📥 Inbound message stored")

	// 2. Choose reply
	reply, ok := s.chooseReply(ctx, d.Tenant, evt.Text, logger)
	if !ok {
		logger.Info().Msg("🤷 No intent matched and fallback disabled")
		return OutcomeNoMatch, nil
	}

	// 3. Persist outbound as pending
	outbound, created, err := s.messages.Upsert(ctx, &models.Message{
		OrganizationID: org.ID,
		DeviceID:       d.Tenant.Device.RefID(),
		ChatbotID:      &bot.ID,
		Direction:      models.DirectionOutbound,
		Counterparty:   evt.RemoteJID,
		Content:        reply.Text,
		ExternalID:     OutboundExternalID(evt.ExternalID),
		BillingStatus:  string(billing.StatusPending),
		DeliveryStatus: models.DeliveryPending,
		CorrelationID:  utils.CorrelationID(ctx),
		Metadata: alert.Metadata(map[string]interface{}{
			"source":             reply.Source,
			"inbound_message_id": inbound.ID.String(),
			"intent":             reply.Intent,
			"provider":           reply.Provider,
			"provider_tokens":    reply.Tokens,
			"generation_error":   reply.GenerationError,
		}),
	})
	if err != nil {
		return "", s.persistenceFailed(ctx, org.ID, evt.RemoteJID, "Failed to persist outbound message", err)
	}
	if !created {
		logger.Info().Msg("🔁 Outbound reply already recorded")
		return OutcomeDuplicate, nil
	}

	// 4. Bill
	charge, err := s.meter.Charge(ctx, billing.Charge{
		OrganizationID: org.ID,
		MessageID:      outbound.ID,
		ResponseText:   reply.Text,
		ProvidedTokens: reply.Tokens,
	})
	if err != nil && !errors.Is(err, billing.ErrAlreadyBilled) {
		s.billingFailed(ctx, org.ID, outbound.ID, evt.RemoteJID, charge, err)
		if deliveryErr := s.messages.UpdateDelivery(ctx, outbound.ID, models.DeliveryFailed, ""); deliveryErr != nil {
			logger.Warn().Err(deliveryErr).Msg("⚠️ Failed to record delivery status")
		}
		return OutcomeNotBilled, err
	}
	if charge != nil && charge.NeedsReconcile {
		s.alerts.Emit(ctx, alert.Alert{
			Severity:       alert.SeverityLow,
			Category:       alert.CategoryReconciliation,
			Message:        "Debit recorded but message status not updated",
			OrganizationID: &org.ID,
			Phone:          evt.RemoteJID,
			Metadata: alert.Metadata(map[string]interface{}{
				"message_id": outbound.ID.String(),
				"charge":     charge.String(),
			}),
		})
	}

	// 5. Send
	session := evt.Instance
	if session == "" {
		session = d.Tenant.Device.SessionName
	}
	sent, err := s.sender.SendText(ctx, session, evt.RemoteJID, reply.Text)
	if err != nil {
		s.alerts.Emit(ctx, alert.Alert{
			Severity:       alert.SeverityHigh,
			Category:       alert.CategoryAPIFailure,
			Message:        "Failed to send reply through gateway",
			OrganizationID: &org.ID,
			Phone:          evt.RemoteJID,
			Error:          err.Error(),
			Metadata: alert.Metadata(map[string]interface{}{
				"message_id": outbound.ID.String(),
				"session":    session,
			}),
		})
		if deliveryErr := s.messages.UpdateDelivery(ctx, outbound.ID, models.DeliveryFailed, ""); deliveryErr != nil {
			logger.Warn().Err(deliveryErr).Msg("⚠️ Failed to record delivery status")
		}
		return OutcomeUndelivered, fmt.Errorf("%w: send reply: %w", ErrAPIFailure, err)
	}

	providerID := ""
	if sent != nil {
		providerID = sent.MessageID
	}
	if err := s.messages.UpdateDelivery(ctx, outbound.ID, models.DeliverySent, providerID); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Failed to record delivery status")
	}

	logger.Info().
		Str("message_id", outbound.ID.String()).
		Str("source", reply.Source).
		Msg("✅ Reply sent")
	return OutcomeReplied, nil
}

// HandleConnectionUpdate records a gateway session state change on the
// matching device. Unknown instances are logged and ignored.
func (s *WebhookService) HandleConnectionUpdate(ctx context.Context, evt *whatsapp.ConnectionUpdate) error {
	state := models.NormalizeDeviceState(evt.State)
	now := time.Now()

	for _, ref := range []string{evt.InstanceID, evt.Instance} {
		if ref == "" {
			continue
		}
		updated, err := s.devices.UpdateState(ctx, ref, state, now)
		if err != nil {
			s.alerts.Emit(ctx, alert.Alert{
				Severity: alert.SeverityHigh,
				Category: alert.CategoryPersistenceFailed,
				Message:  "Failed to update device state",
				Error:    err.Error(),
				Metadata: alert.Metadata(map[string]interface{}{"instance": ref, "state": evt.State}),
			})
			return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		if updated {
			s.log.Info().Str("instance", ref).Str("state", state).Msg("📶 Device state updated")
			return nil
		}
	}

	s.log.Warn().
		Str("instance", evt.Instance).
		Str("instance_id", evt.InstanceID).
		Str("state", evt.State).
		Msg("⚠️ Connection update for unknown device")
	return nil
}

// OutboundExternalID derives the reply's external id from the inbound one,
// so a redelivered event can never produce a second reply row.
func OutboundExternalID(inboundExternalID string) string {
	return "out:" + inboundExternalID
}

func (s *WebhookService) persistenceFailed(ctx context.Context, orgID uuid.UUID, phone, msg string, err error) error {
	s.alerts.Emit(ctx, alert.Alert{
		Severity:       alert.SeverityHigh,
		Category:       alert.CategoryPersistenceFailed,
		Message:        msg,
		OrganizationID: &orgID,
		Phone:          phone,
		Error:          err.Error(),
	})
	return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
}

func (s *WebhookService) billingFailed(ctx context.Context, orgID, messageID uuid.UUID, phone string, charge *billing.ChargeResult, err error) {
	meta := map[string]interface{}{"message_id": messageID.String()}
	if charge != nil {
		meta["tokens"] = charge.Quote.Tokens
		meta["credits"] = charge.Quote.Credits
	}

	switch {
	case errors.Is(err, billing.ErrInsufficientBalance):
		// Expected business outcome: the meter already logged it.
		return
	case errors.Is(err, billing.ErrNotPending):
		// Reconciliation settled the message first and raised its own alert.
		return
	case errors.Is(err, billing.ErrBalanceRecordMissing):
		s.alerts.Emit(ctx, alert.Alert{
			Severity:       alert.SeverityCritical,
			Category:       alert.CategoryBalanceRecordMissing,
			Message:        "Organization has no credit balance row",
			OrganizationID: &orgID,
			Phone:          phone,
			Error:          err.Error(),
			Metadata:       alert.Metadata(meta),
		})
	default:
		s.alerts.Emit(ctx, alert.Alert{
			Severity:       alert.SeverityHigh,
			Category:       alert.CategoryPersistenceFailed,
			Message:        "Credit debit failed",
			OrganizationID: &orgID,
			Phone:          phone,
			Error:          err.Error(),
			Metadata:       alert.Metadata(meta),
		})
	}
}
