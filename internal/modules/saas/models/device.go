package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device connection states reported by the gateway
const (
	DeviceDisconnected = "disconnected"
	DeviceConnecting   = "connecting"
	DeviceQRPending    = "qr_pending"
	DeviceConnected    = "connected"
	DeviceError        = "error"
)

// Device is one WhatsApp number connected through the gateway
type Device struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrganizationID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	SessionName     string     `gorm:"type:text;not null;index" json:"session_name"`
	InstanceID      string     `gorm:"type:text;uniqueIndex" json:"instance_id"`
	PhoneNumber     string     `gorm:"type:text" json:"phone_number"`
	State           string     `gorm:"type:varchar(20);not null;default:'disconnected'" json:"state"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Virtual marks a placeholder built from a session name that has no row yet.
	Virtual bool `gorm:"-" json:"virtual,omitempty"`
}

// TableName specifies the table name
func (Device) TableName() string {
	return "saas_devices"
}

// BeforeCreate sets UUID before creating
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// RefID returns the id to store on messages, nil for virtual devices.
func (d *Device) RefID() *uuid.UUID {
	if d == nil || d.Virtual || d.ID == uuid.Nil {
		return nil
	}
	id := d.ID
	return &id
}

// NormalizeDeviceState maps gateway connection states onto ours.
func NormalizeDeviceState(state string) string {
	switch state {
	case "open", "connected", "WORKING":
		return DeviceConnected
	case "connecting", "STARTING":
		return DeviceConnecting
	case "qr", "qrcode", "SCAN_QR_CODE":
		return DeviceQRPending
	case "close", "closed", "disconnected", "STOPPED":
		return DeviceDisconnected
	default:
		return DeviceError
	}
}
