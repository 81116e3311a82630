package repositories

import (
	"context"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrganizationRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type organizationRepo struct {
	db *gorm.DB
}

func NewOrganizationRepo(db *gorm.DB) OrganizationRepo {
	return &organizationRepo{db: db}
}

func (r *organizationRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}
