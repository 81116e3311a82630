package alert

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

type Category string

const (
	CategoryInvalidPayload       Category = "invalid_payload"
	CategoryTenantNotFound       Category = "tenant_not_found"
	CategoryNoActiveChatbot      Category = "no_active_chatbot"
	CategoryPersistenceFailed    Category = "persistence_failed"
	CategoryAPIFailure           Category = "api_failure"
	CategoryInsufficientBalance  Category = "insufficient_balance"
	CategoryBalanceRecordMissing Category = "balance_record_missing"
	CategoryReconciliation       Category = "reconciliation"
)

// Alert is one operational alert. Rows are append-only.
type Alert struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`

	CorrelationID string   `json:"correlation_id" gorm:"type:varchar(64);index"`
	Severity      Severity `json:"severity" gorm:"type:varchar(20);not null;index"`
	Category      Category `json:"category" gorm:"type:varchar(50);not null;index"`
	Message       string   `json:"message" gorm:"type:text;not null"`

	// Context
	OrganizationID *uuid.UUID `json:"organization_id,omitempty" gorm:"type:uuid;index"`
	Phone          string     `json:"phone,omitempty" gorm:"type:text"`
	Error          string     `json:"error,omitempty" gorm:"type:text"`

	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name
func (Alert) TableName() string {
	return "alerts"
}

// Filter represents filters for querying alerts
type Filter struct {
	OrganizationID *uuid.UUID
	Severity       Severity
	Category       Category
	CorrelationID  string
	StartDate      *time.Time
	EndDate        *time.Time
	Page           int
	PageSize       int
}

// ListResponse represents paginated alert response
type ListResponse struct {
	Alerts     []Alert `json:"alerts"`
	TotalCount int64   `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}
