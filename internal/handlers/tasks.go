package handlers

import (
	"errors"

	"recall/internal/services"

	"github.com/gofiber/fiber/v2"
)

// TaskHandler exposes background task status
type TaskHandler struct {
	registry *services.TaskRegistry
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(registry *services.TaskRegistry) *TaskHandler {
	return &TaskHandler{registry: registry}
}

// Get returns the current status of a background task
// GET /api/v1/tasks/:id
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	task, err := h.registry.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Task not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get task",
		})
	}

	// Tasks are user-scoped; don't leak other users' task state
	if task.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Task not found",
		})
	}

	return c.JSON(task)
}

// List returns all tasks owned by the user
// GET /api/v1/tasks
func (h *TaskHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	tasks := h.registry.TasksForUser(userID)
	return c.JSON(fiber.Map{
		"tasks": tasks,
	})
}
