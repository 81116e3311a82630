package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Delivery states of outbound messages
const (
	DeliveryPending       = "pending"
	DeliverySent          = "sent"
	DeliveryFailed        = "failed"
	DeliveryNotApplicable = "not_applicable"
)

// Message is every inbound and outbound WhatsApp message. ExternalID is the
// provider message id and is unique across the table.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	DeviceID       *uuid.UUID     `gorm:"type:uuid" json:"device_id,omitempty"`
	ChatbotID      *uuid.UUID     `gorm:"type:uuid" json:"chatbot_id,omitempty"`
	Direction      string         `gorm:"type:varchar(10);not null" json:"direction"`
	Counterparty   string         `gorm:"type:text;not null" json:"counterparty"`
	Content        string         `gorm:"type:text" json:"content"`
	ExternalID     string         `gorm:"type:text;not null;uniqueIndex" json:"external_id"`
	TokensUsed     int            `gorm:"default:0" json:"tokens_used"`
	BillingStatus  string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"billing_status"`
	CostCredits    int64          `gorm:"default:0" json:"cost_credits"`
	ChargedAt      *time.Time     `json:"charged_at,omitempty"`
	BillingError   string         `gorm:"type:text" json:"billing_error,omitempty"`
	DeliveryStatus string         `gorm:"type:varchar(20);not null;default:'not_applicable'" json:"delivery_status"`
	CorrelationID  string         `gorm:"type:varchar(64);index" json:"correlation_id"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Message) TableName() string {
	return "saas_messages"
}

// BeforeCreate sets UUID before creating
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
