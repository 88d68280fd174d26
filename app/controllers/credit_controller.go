package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
)

var creditService *credits.Service

// InitializeCreditController wires the entitlement service. Called once from
// the router during startup.
func InitializeCreditController(svc *credits.Service) {
	creditService = svc
}

// HandleRequestFreeCredits claims the one-time free trial for the caller's
// origin. A repeat claim returns the existing token's balance instead of a
// fresh grant.
func HandleRequestFreeCredits(c *fiber.Ctx) error {
	origin := GetClientIP(c)
	if origin == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Could not determine request origin"})
	}

	claim, err := creditService.RequestFreeTrial(origin)
	if err != nil {
		return creditErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"token":          claim.Token,
		"balance":        claim.Balance,
		"alreadyClaimed": claim.AlreadyClaimed,
	})
}

// HandleSyncCredits returns the server-side balance for a token. The client
// cache is advisory only; this is the authoritative number.
func HandleSyncCredits(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing token"})
	}

	res, err := creditService.Sync(req.Token, GetClientIP(c))
	if err != nil {
		return creditErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"balance": res.Balance,
		"token":   res.Token,
	})
}

// HandleDeductCredits spends credits for a costed action. The sole spend
// path: collaborators call this before performing the action.
func HandleDeductCredits(c *fiber.Ctx) error {
	var req struct {
		Amount *int   `json:"amount"`
		Token  string `json:"token"`
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Token == "" || req.Amount == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing required fields"})
	}

	newBalance, err := creditService.Deduct(req.Token, *req.Amount, req.Action)
	if err != nil {
		return creditErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"newBalance": newBalance,
		"token":      req.Token,
	})
}

// HandleRedeemCode applies a redemption code to the caller's balance.
func HandleRedeemCode(c *fiber.Ctx) error {
	var req struct {
		Code  string `json:"code"`
		Token string `json:"token"`
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Code == "" || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing code or token"})
	}
	if req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email is required to redeem code"})
	}

	res, err := creditService.RedeemCode(req.Code, req.Token, req.Email)
	if err != nil {
		return creditErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"creditsAdded": res.CreditsAdded,
		"newBalance":   res.NewBalance,
		"token":        req.Token,
	})
}
