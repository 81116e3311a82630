package handlers

import (
	"context"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AlertLister interface {
	List(ctx context.Context, filter alert.Filter) (*alert.ListResponse, error)
}

type AlertHandler struct {
	alerts AlertLister
}

func NewAlertHandler(alerts AlertLister) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// ListAlerts godoc
// @Summary List alerts
// @Description Paginated alert query, newest first
// @Tags Alerts
// @Produce json
// @Param severity query string false "critical, high, medium, low, info"
// @Param category query string false "Alert category"
// @Param organization_id query string false "Organization ID"
// @Param correlation_id query string false "Correlation ID"
// @Param start_date query string false "RFC3339 lower bound"
// @Param end_date query string false "RFC3339 upper bound"
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} alert.ListResponse
// @Failure 400 {object} map[string]interface{}
// @Router /alerts [get]
func (h *AlertHandler) ListAlerts(c *fiber.Ctx) error {
	filter := alert.Filter{
		Severity:      alert.Severity(c.Query("severity")),
		Category:      alert.Category(c.Query("category")),
		CorrelationID: c.Query("correlation_id"),
		Page:          c.QueryInt("page", 1),
		PageSize:      c.QueryInt("page_size", 50),
	}

	if raw := c.Query("organization_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid organization_id"})
		}
		filter.OrganizationID = &id
	}
	for param, dst := range map[string]**time.Time{"start_date": &filter.StartDate, "end_date": &filter.EndDate} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid " + param})
		}
		*dst = &t
	}

	resp, err := h.alerts.List(c.UserContext(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch alerts"})
	}
	return c.JSON(resp)
}
