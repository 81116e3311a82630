package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ReasonAbandoned is the billing error of pending messages that never
// reached the debit.
const ReasonAbandoned = "abandoned before debit"

// UsageLookup finds the usage transaction written for a message.
type UsageLookup interface {
	FindTransactionByMessageID(ctx context.Context, messageID uuid.UUID) (*models.UsageTransaction, error)
}

type ReconcileConfig struct {
	StaleAfter time.Duration
	BatchSize  int
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Debited   int `json:"debited"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// ReconcileService settles outbound messages left pending, either because
// the process died mid-pipeline or because the status update after a
// successful debit failed.
type ReconcileService struct {
	messages repositories.MessageRepo
	usage    UsageLookup
	alerts   AlertEmitter
	cfg      ReconcileConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewReconcileService(messages repositories.MessageRepo, usage UsageLookup, alerts AlertEmitter, cfg ReconcileConfig, logger zerolog.Logger) *ReconcileService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ReconcileService{
		messages: messages,
		usage:    usage,
		alerts:   alerts,
		cfg:      cfg,
		log:      logger.With().Str("component", "reconcile").Logger(),
		now:      time.Now,
	}
}

// Run repairs one batch of stale pending messages. A message with a usage
// transaction becomes debited from that transaction; one without becomes
// failed.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileReport, error) {
	stale, err := s.messages.FindStalePending(ctx, s.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("find stale pending messages: %w", err)
	}

	report := &ReconcileReport{Scanned: len(stale)}
	for i := range stale {
		msg := &stale[i]
		if err := s.settle(ctx, msg, report); err != nil {
			report.Errors++
			s.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("❌ Failed to reconcile message")
		}
	}

	if report.Scanned > 0 {
		s.log.Info().
			Int("scanned", report.Scanned).
			Int("debited", report.Debited).
			Int("abandoned", report.Abandoned).
			Int("skipped", report.Skipped).
			Int("errors", report.Errors).
			Msg("🧾 Reconciliation finished")
	}
	return report, nil
}

func (s *ReconcileService) settle(ctx context.Context, msg *models.Message, report *ReconcileReport) error {
	usage, err := s.usage.FindTransactionByMessageID(ctx, msg.ID)
	switch {
	case err == nil:
		err = s.messages.MarkDebited(ctx, msg.ID, usage.Tokens, usage.Amount, usage.CreatedAt)
		if errors.Is(err, repositories.ErrNotPending) {
			report.Skipped++
			return nil
		}
		if err != nil {
			return err
		}
		report.Debited++
		s.emit(ctx, msg, "Pending message settled from its usage transaction", map[string]interface{}{
			"message_id":     msg.ID.String(),
			"transaction_id": usage.ID.String(),
			"credits":        usage.Amount,
		})
		return nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.messages.MarkAbandoned(ctx, msg.ID, ReasonAbandoned)
		if errors.Is(err, repositories.ErrNotPending) {
			report.Skipped++
			return nil
		}
		if errors.Is(err, billing.ErrAlreadyBilled) {
			// The debit landed after the lookup; the next run settles it.
			report.Skipped++
			return nil
		}
		if err != nil {
			return err
		}
		report.Abandoned++
		s.emit(ctx, msg, "Pending message abandoned before debit", map[string]interface{}{
			"message_id": msg.ID.String(),
		})
		return nil

	default:
		return fmt.Errorf("find usage transaction: %w", err)
	}
}

func (s *ReconcileService) emit(ctx context.Context, msg *models.Message, text string, meta map[string]interface{}) {
	orgID := msg.OrganizationID
	s.alerts.Emit(ctx, alert.Alert{
		CorrelationID:  msg.CorrelationID,
		Severity:       alert.SeverityLow,
		Category:       alert.CategoryReconciliation,
		Message:        text,
		OrganizationID: &orgID,
		Phone:          msg.Counterparty,
		Metadata:       alert.Metadata(meta),
	})
}
