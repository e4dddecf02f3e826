package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"recall/internal/models"
	"recall/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// factStore is the fact service surface the handler needs
type factStore interface {
	CreateFact(ctx context.Context, userID, appID, content string, metadata map[string]interface{}) (*models.Fact, error)
	TransitionFact(ctx context.Context, userID string, factID primitive.ObjectID, newState models.FactState, actorID string) (*models.Fact, error)
	GetFact(ctx context.Context, userID string, factID primitive.ObjectID) (*models.Fact, error)
	ListFacts(ctx context.Context, userID string, state models.FactState, page, pageSize int) ([]models.Fact, int64, error)
	History(ctx context.Context, userID string, factID primitive.ObjectID) ([]models.FactStateTransition, error)
}

// FactHandler handles fact CRUD and state transitions
type FactHandler struct {
	factService factStore
}

// NewFactHandler creates a new fact handler
func NewFactHandler(factService factStore) *FactHandler {
	return &FactHandler{factService: factService}
}

type createFactRequest struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Create stores a new fact in the active state
// POST /api/v1/facts
func (h *FactHandler) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	clientID, _ := c.Locals("client_id").(string)

	var req createFactRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	fact, err := h.factService.CreateFact(c.Context(), userID, clientID, req.Content, req.Metadata)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create fact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fact)
}

// List returns the user's facts with optional state filter
// GET /api/v1/facts?state=active&page=1&pageSize=20
func (h *FactHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	state := models.FactState(c.Query("state", ""))
	if state != "" && !models.IsValidFactState(state) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid state filter",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	facts, total, err := h.factService.ListFacts(c.Context(), userID, state, page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list facts",
		})
	}

	return c.JSON(fiber.Map{
		"facts":    facts,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// Get returns a single fact owned by the user
// GET /api/v1/facts/:id
func (h *FactHandler) Get(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	factID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid fact ID",
		})
	}

	fact, err := h.factService.GetFact(c.Context(), userID, factID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Fact not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get fact",
		})
	}

	return c.JSON(fact)
}

type transitionRequest struct {
	State string `json:"state"`
}

// Transition moves a fact to a new lifecycle state. The audit actor is
// the authenticated user, not the calling application.
// POST /api/v1/facts/:id/state
func (h *FactHandler) Transition(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	factID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid fact ID",
		})
	}

	var req transitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	newState := models.FactState(strings.ToLower(strings.TrimSpace(req.State)))
	fact, err := h.factService.TransitionFact(c.Context(), userID, factID, newState, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Fact not found",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to transition fact",
			})
		}
	}

	return c.JSON(fact)
}

// History returns the fact's state transition audit trail, oldest first.
// Scoped to the owning user.
// GET /api/v1/facts/:id/history
func (h *FactHandler) History(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	factID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid fact ID",
		})
	}

	history, err := h.factService.History(c.Context(), userID, factID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Fact not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load fact history",
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}
