package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SessionStateReader asks the gateway about a session.
type SessionStateReader interface {
	SessionState(ctx context.Context, session string) (string, error)
	GetProviderName() string
}

type DeviceStateStore interface {
	FindBySessionName(ctx context.Context, sessionName string) (*models.Device, error)
	UpdateState(ctx context.Context, ref, state string, at time.Time) (bool, error)
}

type DeviceHandler struct {
	gateway SessionStateReader
	devices DeviceStateStore
}

func NewDeviceHandler(gateway SessionStateReader, devices DeviceStateStore) *DeviceHandler {
	return &DeviceHandler{gateway: gateway, devices: devices}
}

// GetSessionStatus godoc
// @Summary Get WhatsApp session status
// @Description Asks the gateway for the session state and records it on the device
// @Tags Devices
// @Produce json
// @Param session path string true "Session name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /devices/{session}/status [get]
func (h *DeviceHandler) GetSessionStatus(c *fiber.Ctx) error {
	session := c.Params("session")

	device, err := h.devices.FindBySessionName(c.UserContext(), session)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "device not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch device"})
	}

	raw, err := h.gateway.SessionState(c.UserContext(), session)
	if err != nil {
		log.Warn().Err(err).Str("session", session).Msg("⚠️ Failed to get session status")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":      "gateway unavailable",
			"session":    session,
			"last_state": device.State,
		})
	}

	state := models.NormalizeDeviceState(raw)
	if state != device.State {
		if _, err := h.devices.UpdateState(c.UserContext(), session, state, time.Now()); err != nil {
			log.Warn().Err(err).Str("session", session).Msg("⚠️ Failed to record device state")
		}
	}

	return c.JSON(fiber.Map{
		"session":   session,
		"state":     state,
		"raw_state": raw,
		"connected": state == models.DeviceConnected,
		"provider":  h.gateway.GetProviderName(),
	})
}
