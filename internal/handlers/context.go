package handlers

import (
	"strings"

	"recall/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ContextHandler exposes the orchestration façade
type ContextHandler struct {
	orchestrator *services.ContextOrchestrator
}

// NewContextHandler creates a new context handler
func NewContextHandler(orchestrator *services.ContextOrchestrator) *ContextHandler {
	return &ContextHandler{orchestrator: orchestrator}
}

type contextRequest struct {
	Message           string `json:"message"`
	IsNewConversation bool   `json:"is_new_conversation"`
}

// Orchestrate engineers context for one user message
// POST /api/v1/context
func (h *ContextHandler) Orchestrate(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	clientID, _ := c.Locals("client_id").(string)

	var req contextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	// Orchestrate never fails; degraded paths come back as text
	context := h.orchestrator.Orchestrate(c.Context(), req.Message, userID, clientID, req.IsNewConversation)

	return c.JSON(fiber.Map{
		"context": context,
	})
}
