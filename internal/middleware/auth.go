package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// RequireUser extracts the caller identity from headers. X-User-ID is
// mandatory; X-Client-ID names the calling application and defaults to
// "default". Both land in Locals for handlers downstream.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "X-User-ID header is required",
			})
		}

		clientID := c.Get("X-Client-ID")
		if clientID == "" {
			clientID = "default"
		}

		c.Locals("user_id", userID)
		c.Locals("client_id", clientID)
		return c.Next()
	}
}
