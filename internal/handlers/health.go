package handlers

import (
	"time"

	"recall/internal/database"
	"recall/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongodb *database.MongoDB
	redis   *services.RedisService
	cache   *services.ContextCacheService
}

// NewHealthHandler creates a new health handler. redis may be nil.
func NewHealthHandler(mongodb *database.MongoDB, redis *services.RedisService, cache *services.ContextCacheService) *HealthHandler {
	return &HealthHandler{mongodb: mongodb, redis: redis, cache: cache}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"

	mongoStatus := "ok"
	if err := h.mongodb.Ping(c.Context()); err != nil {
		mongoStatus = "down"
		status = "degraded"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "ok"
		if err := h.redis.Ping(c.Context()); err != nil {
			redisStatus = "down"
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":        status,
		"mongodb":       mongoStatus,
		"redis":         redisStatus,
		"cache_entries": h.cache.Count(),
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}
