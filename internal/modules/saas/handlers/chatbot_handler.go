package handlers

import (
	"context"
	"errors"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ChatbotActivator interface {
	Activate(ctx context.Context, id uuid.UUID) (*models.Chatbot, error)
}

type ChatbotHandler struct {
	chatbots ChatbotActivator
}

func NewChatbotHandler(chatbots ChatbotActivator) *ChatbotHandler {
	return &ChatbotHandler{chatbots: chatbots}
}

// ActivateChatbot godoc
// @Summary Activate a chatbot
// @Description Makes the chatbot the only active one of its organization
// @Tags Chatbots
// @Produce json
// @Param id path string true "Chatbot ID"
// @Success 200 {object} models.Chatbot
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /chatbots/{id}/activate [post]
func (h *ChatbotHandler) ActivateChatbot(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid chatbot id"})
	}

	bot, err := h.chatbots.Activate(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chatbot not found"})
		}
		log.Error().Err(err).Str("chatbot_id", id.String()).Msg("❌ Failed to activate chatbot")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to activate chatbot"})
	}

	log.Info().
		Str("chatbot_id", bot.ID.String()).
		Str("organization_id", bot.OrganizationID.String()).
		Msg("✅ Chatbot activated")
	return c.JSON(bot)
}
