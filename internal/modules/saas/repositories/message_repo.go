package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotPending is returned when a billing transition finds the message
// already out of pending. It is billing.ErrNotPending so callers on either
// side of the ledger can match it.
var ErrNotPending = billing.ErrNotPending

type MessageRepo interface {
	// Upsert inserts msg unless a row with the same external_id exists, in
	// which case the stored row is returned with created=false.
	Upsert(ctx context.Context, msg *models.Message) (*models.Message, bool, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	MarkDebited(ctx context.Context, id uuid.UUID, tokens int, credits int64, chargedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, tokens int, credits int64, reason string) error
	// MarkAbandoned fails a pending message that was never debited and
	// fails its pending delivery with it. It returns billing.ErrAlreadyBilled
	// when a usage transaction exists for the message.
	MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error
	UpdateDelivery(ctx context.Context, id uuid.UUID, status, providerMessageID string) error
	// FindStalePending lists outbound messages still pending since before.
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]models.Message, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Upsert(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	if msg.ExternalID == "" {
		return nil, false, fmt.Errorf("message external_id is required")
	}

	// Inbound rows are never billed; the status is set in the insert itself.
	if msg.Direction == models.DirectionInbound {
		msg.BillingStatus = string(billing.StatusSkipped)
		msg.CostCredits = 0
		msg.TokensUsed = 0
		msg.DeliveryStatus = models.DeliveryNotApplicable
	} else if msg.BillingStatus == "" {
		msg.BillingStatus = string(billing.StatusPending)
	}
	if msg.DeliveryStatus == "" {
		msg.DeliveryStatus = models.DeliveryPending
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(msg)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return msg, true, nil
	}

	existing, err := r.FindByExternalID(ctx, msg.ExternalID)
	if err != nil {
		return nil, false, fmt.Errorf("reload existing message: %w", err)
	}
	return existing, false, nil
}

func (r *messageRepo) FindByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) MarkDebited(ctx context.Context, id uuid.UUID, tokens int, credits int64, chargedAt time.Time) error {
	return r.transition(ctx, id, map[string]interface{}{
		"billing_status": string(billing.StatusDebited),
		"tokens_used":    tokens,
		"cost_credits":   credits,
		"charged_at":     chargedAt,
		"billing_error":  "",
	})
}

func (r *messageRepo) MarkFailed(ctx context.Context, id uuid.UUID, tokens int, credits int64, reason string) error {
	return r.transition(ctx, id, map[string]interface{}{
		"billing_status": string(billing.StatusFailed),
		"tokens_used":    tokens,
		"cost_credits":   credits,
		"billing_error":  reason,
	})
}

// transition only touches rows still pending, so a message reaches a
// terminal billing status exactly once.
func (r *messageRepo) transition(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND billing_status = ?", id, string(billing.StatusPending)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

func (r *messageRepo) MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPending(tx, id); err != nil {
			return err
		}

		// Read after the lock so a debit that committed first is visible.
		var billed int64
		if err := tx.Model(&models.UsageTransaction{}).
			Where("message_id = ?", id).
			Count(&billed).Error; err != nil {
			return fmt.Errorf("check usage transaction: %w", err)
		}
		if billed > 0 {
			return billing.ErrAlreadyBilled
		}

		delivery := gorm.Expr("CASE WHEN delivery_status = ? THEN ? ELSE delivery_status END",
			models.DeliveryPending, models.DeliveryFailed)
		return tx.Model(&models.Message{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"billing_status":  string(billing.StatusFailed),
				"billing_error":   reason,
				"delivery_status": delivery,
			}).Error
	})
}

// lockPending takes the row lock on a message inside tx and fails with
// ErrNotPending unless it is still pending.
func lockPending(tx *gorm.DB, id uuid.UUID) error {
	var msg models.Message
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "billing_status").
		Where("id = ?", id).
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	if err != nil {
		return fmt.Errorf("lock message: %w", err)
	}
	if msg.BillingStatus != string(billing.StatusPending) {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

func (r *messageRepo) UpdateDelivery(ctx context.Context, id uuid.UUID, status, providerMessageID string) error {
	updates := map[string]interface{}{"delivery_status": status}
	if providerMessageID != "" {
		updates["metadata"] = gorm.Expr("COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('provider_message_id', ?::text)", providerMessageID)
	}
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *messageRepo) FindStalePending(ctx context.Context, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("direction = ? AND billing_status = ? AND created_at < ?",
			models.DirectionOutbound, string(billing.StatusPending), before).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
