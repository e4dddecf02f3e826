package handlers

import (
	"errors"

	"recall/internal/models"
	"recall/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccessHandler manages per-application access rules
type AccessHandler struct {
	accessService *services.AccessService
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(accessService *services.AccessService) *AccessHandler {
	return &AccessHandler{accessService: accessService}
}

type createRuleRequest struct {
	AppID  string `json:"app_id"`
	Effect string `json:"effect"`
	FactID string `json:"fact_id,omitempty"` // empty means wildcard
}

// Create stores a new access rule
// POST /api/v1/access-rules
func (h *AccessHandler) Create(c *fiber.Ctx) error {
	clientID, _ := c.Locals("client_id").(string)

	var req createRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	appID := req.AppID
	if appID == "" {
		appID = clientID
	}

	rule := &models.AccessRule{
		SubjectType: models.AccessSubjectApp,
		SubjectID:   appID,
		ObjectType:  models.AccessObjectFact,
		Effect:      req.Effect,
	}

	if req.FactID != "" {
		factID, err := primitive.ObjectIDFromHex(req.FactID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid fact ID",
			})
		}
		rule.ObjectID = &factID
	}

	created, err := h.accessService.CreateRule(c.Context(), rule)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create access rule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// List returns rules for an application, oldest first
// GET /api/v1/access-rules?app_id=chatgpt
func (h *AccessHandler) List(c *fiber.Ctx) error {
	clientID, _ := c.Locals("client_id").(string)

	appID := c.Query("app_id", clientID)

	rules, err := h.accessService.ListRules(c.Context(), appID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list access rules",
		})
	}

	return c.JSON(fiber.Map{
		"rules": rules,
	})
}
