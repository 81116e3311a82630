package handlers

import (
	"context"
	"errors"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/services"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/utils"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

// HeaderCorrelationID carries the id of one webhook delivery.
const HeaderCorrelationID = "X-Correlation-ID"

// Pipeline is the part of services.WebhookService the webhook needs.
type Pipeline interface {
	Resolve(ctx context.Context, evt *whatsapp.MessageUpsert) (*tenant.Context, error)
	Dispatch(d services.Delivery)
	HandleConnectionUpdate(ctx context.Context, evt *whatsapp.ConnectionUpdate) error
}

type WebhookHandler struct {
	pipeline Pipeline
	alerts   services.AlertEmitter
}

func NewWebhookHandler(pipeline Pipeline, alerts services.AlertEmitter) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, alerts: alerts}
}

// ReceiveWebhook godoc
// @Summary WhatsApp gateway webhook receiver
// @Description Accepts gateway events. messages.upsert is resolved to a tenant synchronously and processed in the background.
// @Tags Webhook
// @Accept json
// @Produce json
// @Param payload body map[string]interface{} true "Gateway event"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /webhook [post]
func (h *WebhookHandler) ReceiveWebhook(c *fiber.Ctx) error {
	// The id outlives the request in the background pipeline and the alert
	// queue, so it must not alias fasthttp's reused header buffer.
	correlationID := fiberutils.CopyString(c.Get(HeaderCorrelationID))
	if correlationID == "" {
		correlationID = utils.NewCorrelationID()
	}
	c.Set(HeaderCorrelationID, correlationID)
	ctx := utils.WithCorrelationID(c.UserContext(), correlationID)

	evt, err := whatsapp.ParseEvent(c.Body())
	if err != nil {
		h.alerts.Emit(ctx, alert.Alert{
			Severity: alert.SeverityInfo,
			Category: alert.CategoryInvalidPayload,
			Message:  "Rejected webhook payload",
			Error:    err.Error(),
		})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid payload",
		})
	}

	switch e := evt.(type) {
	case *whatsapp.MessageUpsert:
		if services.ShouldIgnore(e) {
			return c.JSON(fiber.Map{"success": true, "status": "ignored"})
		}

		tc, err := h.pipeline.Resolve(ctx, e)
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) || errors.Is(err, tenant.ErrNoActiveChatbot) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"success": false,
					"error":   err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "failed to resolve tenant",
			})
		}

		h.pipeline.Dispatch(services.Delivery{
			CorrelationID: correlationID,
			Event:         e,
			Tenant:        tc,
		})
		return c.JSON(fiber.Map{"success": true, "status": "accepted", "correlation_id": correlationID})

	case *whatsapp.ConnectionUpdate:
		if err := h.pipeline.HandleConnectionUpdate(ctx, e); err != nil {
			logger := utils.Ctx(ctx)
			logger.Warn().Err(err).Str("instance", e.Instance).Msg("⚠️ Connection update not recorded")
		}
		return c.JSON(fiber.Map{"success": true, "status": "recorded"})

	default:
		logger := utils.Ctx(ctx)
		logger.Debug().Str("event", evt.EventName()).Msg("⏭️ Skipping unhandled event")
		return c.JSON(fiber.Map{"success": true, "status": "ignored"})
	}
}
