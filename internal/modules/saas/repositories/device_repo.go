package repositories

import (
	"context"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"gorm.io/gorm"
)

type DeviceRepo interface {
	FindByInstanceID(ctx context.Context, instanceID string) (*models.Device, error)
	FindBySessionName(ctx context.Context, sessionName string) (*models.Device, error)
	// UpdateState records a gateway connection state for the device whose
	// instance id or session name matches ref. It reports whether a row
	// was updated.
	UpdateState(ctx context.Context, ref, state string, at time.Time) (bool, error)
}

type deviceRepo struct {
	db *gorm.DB
}

func NewDeviceRepo(db *gorm.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) FindByInstanceID(ctx context.Context, instanceID string) (*models.Device, error) {
	var device models.Device
	if err := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) FindBySessionName(ctx context.Context, sessionName string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).
		Where("session_name = ?", sessionName).
		Order("updated_at DESC").
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) UpdateState(ctx context.Context, ref, state string, at time.Time) (bool, error) {
	updates := map[string]interface{}{"state": state}
	if state == models.DeviceConnected {
		updates["last_connected_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("instance_id = ? OR session_name = ?", ref, ref).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
