package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FitSnapApp/FitSnap/internal/pkg/env"
	"github.com/FitSnapApp/FitSnap/internal/pkg/payment"
)

var stripeClient *payment.StripeClient

// InitializePaymentController wires the payment provider client.
func InitializePaymentController(client *payment.StripeClient) {
	stripeClient = client
}

const paymentTimeout = 20 * time.Second

// HandleCreateCheckout opens a Stripe Checkout session for a credit package.
func HandleCreateCheckout(c *fiber.Ctx) error {
	var req struct {
		PriceID string `json:"priceId"`
		Token   string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.PriceID == "" || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing priceId or token"})
	}

	if !stripeClient.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment provider not configured"})
	}

	pkg, ok := payment.PackageByPriceID(req.PriceID)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown credit package"})
	}

	base := publicBaseURL(c)
	successURL := base + "/payment/success?session_id={CHECKOUT_SESSION_ID}&token=" + req.Token + "&credits=" + strconv.Itoa(pkg.Credits)
	cancelURL := base + "/?payment=cancelled"

	ctx, cancel := context.WithTimeout(c.UserContext(), paymentTimeout)
	defer cancel()

	session, err := stripeClient.CreateCheckoutSession(ctx, pkg, req.Token, successURL, cancelURL)
	if err != nil {
		log.Printf("checkout session creation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create checkout session"})
	}

	return c.JSON(fiber.Map{
		"sessionId": session.ID,
		"url":       session.URL,
	})
}

// HandleVerifyPayment confirms a checkout session with the provider and
// credits the ledger exactly once per session. The credit amount comes from
// the session metadata, never from the client.
func HandleVerifyPayment(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.SessionID == "" || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing sessionId or token"})
	}

	if !stripeClient.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment provider not configured"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), paymentTimeout)
	defer cancel()

	session, err := stripeClient.GetCheckoutSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment provider not configured"})
		}
		log.Printf("checkout session lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify payment"})
	}

	if !session.Paid() {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "Payment not completed"})
	}

	purchased, err := strconv.Atoi(session.Metadata["credits"])
	if err != nil || purchased <= 0 {
		log.Printf("session %s has no usable credits metadata", session.ID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify payment"})
	}

	res, err := creditService.ReconcilePayment(session.ID, req.Token, purchased)
	if err != nil {
		return creditErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"creditsAdded":    res.CreditsAdded,
		"newBalance":      res.NewBalance,
		"alreadyCredited": res.AlreadyCredited,
		"token":           req.Token,
	})
}

func publicBaseURL(c *fiber.Ctx) string {
	if base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"); base != "" {
		return base
	}
	return c.BaseURL()
}
