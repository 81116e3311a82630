package handlers

import (
	"context"
	"errors"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditReader is the read side of repositories.CreditRepo.
type CreditReader interface {
	Balance(ctx context.Context, organizationID uuid.UUID) (*models.CreditBalance, error)
	Transactions(ctx context.Context, organizationID uuid.UUID, page, pageSize int) (*repositories.TransactionPage, error)
}

type BillingHandler struct {
	credits CreditReader
}

func NewBillingHandler(credits CreditReader) *BillingHandler {
	return &BillingHandler{credits: credits}
}

// GetBalance godoc
// @Summary Get organization credit balance
// @Tags Billing
// @Produce json
// @Param id path string true "Organization ID"
// @Success 200 {object} models.CreditBalance
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /organizations/{id}/balance [get]
func (h *BillingHandler) GetBalance(c *fiber.Ctx) error {
	orgID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid organization id"})
	}

	balance, err := h.credits.Balance(c.UserContext(), orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "credit balance not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch balance"})
	}
	return c.JSON(balance)
}

// ListUsageTransactions godoc
// @Summary List usage transactions of an organization
// @Tags Billing
// @Produce json
// @Param id path string true "Organization ID"
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} repositories.TransactionPage
// @Failure 400 {object} map[string]interface{}
// @Router /organizations/{id}/usage-transactions [get]
func (h *BillingHandler) ListUsageTransactions(c *fiber.Ctx) error {
	orgID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid organization id"})
	}

	page, err := h.credits.Transactions(c.UserContext(), orgID, c.QueryInt("page", 1), c.QueryInt("page_size", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch usage transactions"})
	}
	return c.JSON(page)
}
