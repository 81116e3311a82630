package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Chatbot is the reply configuration of an organization. Only one per
// organization may be active. A nil Temperature takes the column default;
// zero is a valid setting.
type Chatbot struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrganizationID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	DeviceID        *uuid.UUID `gorm:"type:uuid;index" json:"device_id,omitempty"`
	Name            string     `gorm:"type:text;not null" json:"name"`
	SystemPrompt    string     `gorm:"type:text" json:"system_prompt"`
	Model           string     `gorm:"type:varchar(100)" json:"model"`
	Temperature     *float32   `gorm:"default:0.7" json:"temperature"`
	MaxTokens       int        `gorm:"default:500" json:"max_tokens"`
	FallbackEnabled bool       `gorm:"not null" json:"fallback_enabled"`
	FallbackReply   string     `gorm:"type:text" json:"fallback_reply"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Intents []Intent `gorm:"foreignKey:ChatbotID" json:"intents,omitempty"`
}

// TableName specifies the table name
func (Chatbot) TableName() string {
	return "saas_chatbots"
}

// BeforeCreate sets UUID before creating
func (c *Chatbot) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Intent is a pattern -> responses rule of a chatbot
type Intent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ChatbotID uuid.UUID      `gorm:"type:uuid;not null;index" json:"chatbot_id"`
	Name      string         `gorm:"type:text;not null" json:"name"`
	Patterns  pq.StringArray `gorm:"type:text[]" json:"patterns"`
	Responses pq.StringArray `gorm:"type:text[]" json:"responses"`
	Position  int            `gorm:"default:0" json:"position"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (Intent) TableName() string {
	return "saas_intents"
}

// BeforeCreate sets UUID before creating
func (i *Intent) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
