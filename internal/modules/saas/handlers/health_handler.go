package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db       Pinger
	gateway  string
	provider string
}

func NewHealthHandler(db Pinger, gateway, provider string) *HealthHandler {
	return &HealthHandler{db: db, gateway: gateway, provider: provider}
}

// GetHealth godoc
// @Summary Service health check
// @Description Check if API and database are alive
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"service":  "saas-api",
		"gateway":  h.gateway,
		"provider": h.provider,
	})
}
