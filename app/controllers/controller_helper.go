package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
)

// GetClientIP determines the actual client IP address considering proxies.
// This is the origin key for free-trial claims, so the order matters:
// Cloudflare header first, then the forwarded chain, then the socket peer.
// Header values are backed by fasthttp's reused request buffer and are only
// valid within the handler, so copy before the value outlives the request.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return utils.CopyString(cfIP)
	}

	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return utils.CopyString(ip)
		}
	}

	return utils.CopyString(c.IP())
}

// creditErrorResponse maps the entitlement error taxonomy onto HTTP statuses.
// Redemption failures are terminal and reported verbatim; insufficient
// credits carries the balance so the client can redirect to a top-up.
func creditErrorResponse(c *fiber.Ctx, err error) error {
	var insufficient *credits.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "Insufficient credits",
			"balance": insufficient.Balance,
		})
	}

	var validation *credits.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validation.Message})
	}

	switch {
	case errors.Is(err, credits.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email format"})
	case errors.Is(err, credits.ErrCodeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Invalid credit code"})
	case errors.Is(err, credits.ErrCodeAlreadyUsed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Credit code already used"})
	case errors.Is(err, credits.ErrEmailMismatch):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "This code is restricted to a different email address"})
	case errors.Is(err, credits.ErrDuplicateCode):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Code already exists"})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
