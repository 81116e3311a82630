package repositories

import (
	"context"
	"errors"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatbotRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error)
	// FindActive returns the active chatbot of the organization with its
	// intents in configured order, preferring one bound to deviceID.
	FindActive(ctx context.Context, organizationID uuid.UUID, deviceID *uuid.UUID) (*models.Chatbot, error)
	// Activate makes the chatbot the only active one of its organization.
	Activate(ctx context.Context, id uuid.UUID) (*models.Chatbot, error)
}

type chatbotRepo struct {
	db *gorm.DB
}

func NewChatbotRepo(db *gorm.DB) ChatbotRepo {
	return &chatbotRepo{db: db}
}

func (r *chatbotRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
	var bot models.Chatbot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bot).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

func (r *chatbotRepo) FindActive(ctx context.Context, organizationID uuid.UUID, deviceID *uuid.UUID) (*models.Chatbot, error) {
	if deviceID != nil {
		bot, err := r.findActive(ctx, r.db.Where("device_id = ?", *deviceID), organizationID)
		if err == nil {
			return bot, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return r.findActive(ctx, r.db, organizationID)
}

func (r *chatbotRepo) findActive(ctx context.Context, scope *gorm.DB, organizationID uuid.UUID) (*models.Chatbot, error) {
	var bot models.Chatbot
	err := scope.WithContext(ctx).
		Preload("Intents", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		}).
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("updated_at DESC").
		First(&bot).Error
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (r *chatbotRepo) Activate(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
	var bot models.Chatbot

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&bot).Error; err != nil {
			return err
		}

		// Serialize activations of the same organization
		var org models.Organization
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bot.OrganizationID).
			First(&org).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Chatbot{}).
			Where("organization_id = ? AND id <> ? AND is_active = ?", bot.OrganizationID, bot.ID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		if err := tx.Model(&bot).Update("is_active", true).Error; err != nil {
			return err
		}
		bot.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bot, nil
}
