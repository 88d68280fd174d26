package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/FitSnapApp/FitSnap/internal/pkg/env"
)

// AdminKeyMiddleware guards the admin endpoints with a shared key from
// ADMIN_API_KEY. When no key is configured the group stays open.
func AdminKeyMiddleware() fiber.Handler {
	expected := strings.TrimSpace(env.GetEnv("ADMIN_API_KEY", ""))

	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}

		supplied := extractAdminKey(c)
		if supplied == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing admin key"})
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin key"})
		}

		return c.Next()
	}
}

func extractAdminKey(c *fiber.Ctx) string {
	if key := strings.TrimSpace(c.Get("X-Admin-Key")); key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
