package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Owner scopes API requests to the authenticated owner. Authentication itself
// lives in the upstream proxy, which places the verified user ID in the
// X-User-ID header; this middleware only refuses requests that arrive without
// it and exposes the ID to handlers.
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("X-User-ID")
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}

		userID, err := strconv.ParseUint(header, 10, 32)
		if err != nil || userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid user identity",
			})
		}

		c.Locals("userID", uint(userID))
		return c.Next()
	}
}
