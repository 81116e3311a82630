package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditBalance holds the spendable credits of one organization. It only
// changes through the conditional debit in CreditRepo.
type CreditBalance struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primary_key" json:"organization_id"`
	Balance        int64     `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (CreditBalance) TableName() string {
	return "saas_credit_balances"
}

// UsageTransaction is the append-only audit row of a debit
type UsageTransaction struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	MessageID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"message_id"`
	Amount         int64     `gorm:"not null" json:"amount"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	Tokens         int       `gorm:"not null;default:0" json:"tokens"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name
func (UsageTransaction) TableName() string {
	return "saas_usage_transactions"
}

// BeforeCreate sets UUID before creating
func (t *UsageTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
