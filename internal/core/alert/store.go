package alert

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store persists and queries alerts.
type Store interface {
	Save(ctx context.Context, a *Alert) error
	List(ctx context.Context, filter Filter) (*ListResponse, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates the gorm backed alert store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Save(ctx context.Context, a *Alert) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *gormStore) List(ctx context.Context, filter Filter) (*ListResponse, error) {
	query := s.db.WithContext(ctx).Model(&Alert{})

	// Apply filters
	if filter.OrganizationID != nil {
		query = query.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.CorrelationID != "" {
		query = query.Where("correlation_id = ?", filter.CorrelationID)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	// Count total
	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	filter = filter.normalized()
	offset := (filter.Page - 1) * filter.PageSize

	var alerts []Alert
	if err := query.
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}

	return newListResponse(alerts, totalCount, filter), nil
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > 500 {
		f.PageSize = 500
	}
	return f
}

func newListResponse(alerts []Alert, totalCount int64, filter Filter) *ListResponse {
	totalPages := int(totalCount) / filter.PageSize
	if int(totalCount)%filter.PageSize > 0 {
		totalPages++
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	return &ListResponse{
		Alerts:     alerts,
		TotalCount: totalCount,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}
}
