package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrganizationActive   = "active"
	OrganizationInactive = "inactive"
)

// Organization is the tenant root. It is deactivated, never deleted.
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Status    string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	PlanTier  string    `gorm:"type:varchar(50);default:'free'" json:"plan_tier"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Organization) TableName() string {
	return "saas_organizations"
}

// BeforeCreate sets UUID before creating
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o *Organization) IsActive() bool {
	return o.Status == OrganizationActive
}
