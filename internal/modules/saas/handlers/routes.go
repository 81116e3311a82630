package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

// Handlers groups every HTTP handler of the saas module.
type Handlers struct {
	Health  *HealthHandler
	Webhook *WebhookHandler
	Alerts  *AlertHandler
	Billing *BillingHandler
	Chatbot *ChatbotHandler
	Devices *DeviceHandler
}

// Register mounts the saas routes on app. Nil handlers are skipped.
func (h Handlers) Register(app *fiber.App) {
	// Swagger
	app.Get("/swagger/*", swagger.HandlerDefault)

	if h.Health != nil {
		app.Get("/health", h.Health.GetHealth)
	}
	if h.Webhook != nil {
		app.Post("/webhook", h.Webhook.ReceiveWebhook)
	}
	if h.Alerts != nil {
		app.Get("/alerts", h.Alerts.ListAlerts)
	}
	if h.Billing != nil {
		app.Get("/organizations/:id/balance", h.Billing.GetBalance)
		app.Get("/organizations/:id/usage-transactions", h.Billing.ListUsageTransactions)
	}
	if h.Chatbot != nil {
		app.Post("/chatbots/:id/activate", h.Chatbot.ActivateChatbot)
	}
	if h.Devices != nil {
		app.Get("/devices/:session/status", h.Devices.GetSessionStatus)
	}
}
