package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
	"github.com/FitSnapApp/FitSnap/internal/pkg/genai"
)

var (
	genaiClient     *genai.Client
	refundOnFailure bool
)

// InitializeTryOnController wires the generation gateway. refundFailed
// enables the refund-on-failure policy for server-charged requests; the
// default is off, matching the no-refund product decision.
func InitializeTryOnController(client *genai.Client, refundFailed bool) {
	genaiClient = client
	refundOnFailure = refundFailed
}

const generationTimeout = 90 * time.Second

// Default prompts used when the client does not send its own.
const (
	defaultModelImagePrompt = "You are an expert fashion photographer AI. Transform the person in this image into a full-body fashion model photo suitable for an e-commerce website. The background must be a clean, neutral studio backdrop (light gray, #f0f0f0). The person should have a neutral, professional model expression. Preserve the person's identity, unique features, and body type, but place them in a standard, relaxed standing model pose. The final image must be photorealistic. Return ONLY the final image."

	defaultTryOnPrompt = "You are an expert virtual try-on AI. You will be given a 'model image' and a 'garment image'. Create a new photorealistic image where the person from the 'model image' is wearing the clothing from the 'garment image'. Completely remove and replace the clothing item worn by the person with the new garment. The person's face, hair, body shape, pose and the entire background must remain unchanged. Fit the new garment realistically with natural folds, shadows and lighting consistent with the original scene. Return ONLY the final, edited image."

	defaultPosePromptFormat = "You are an expert fashion photographer AI. Take this image and regenerate it from a different perspective. The person, clothing, and background style must remain identical. The new perspective should be: %q. Return ONLY the final image."
)

// HandleModelImage turns a user photo into a studio model shot.
func HandleModelImage(c *fiber.Ctx) error {
	var req struct {
		UserImage string `json:"userImage"`
		Prompt    string `json:"prompt"`
		Token     string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.UserImage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing userImage"})
	}

	userImage, err := parseInputImage(req.UserImage)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid image data"})
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultModelImagePrompt
	}

	return generate(c, req.Token, credits.ActionModelGeneration, "Failed to generate model image", []genai.Part{
		genai.ImagePart(userImage),
		genai.TextPart(prompt),
	})
}

// HandleVirtualTryOn composes a model image with a garment image.
func HandleVirtualTryOn(c *fiber.Ctx) error {
	var req struct {
		ModelImage   string `json:"modelImage"`
		GarmentImage string `json:"garmentImage"`
		Prompt       string `json:"prompt"`
		Token        string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.ModelImage == "" || req.GarmentImage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing modelImage or garmentImage"})
	}

	modelImage, err := parseInputImage(req.ModelImage)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid image data"})
	}
	garmentImage, err := parseInputImage(req.GarmentImage)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid image data"})
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultTryOnPrompt
	}

	return generate(c, req.Token, credits.ActionVirtualTryOn, "Failed to generate virtual try-on image", []genai.Part{
		genai.ImagePart(modelImage),
		genai.ImagePart(garmentImage),
		genai.TextPart(prompt),
	})
}

// HandlePoseVariation regenerates a try-on image from a new perspective.
func HandlePoseVariation(c *fiber.Ctx) error {
	var req struct {
		TryOnImage      string `json:"tryOnImage"`
		PoseInstruction string `json:"poseInstruction"`
		Prompt          string `json:"prompt"`
		Token           string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.TryOnImage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing tryOnImage"})
	}

	tryOnImage, err := parseInputImage(req.TryOnImage)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid image data"})
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf(defaultPosePromptFormat, req.PoseInstruction)
	}

	return generate(c, req.Token, credits.ActionPoseVariation, "Failed to generate pose variation", []genai.Part{
		genai.ImagePart(tryOnImage),
		genai.TextPart(prompt),
	})
}

// HandleHealth reports liveness and whether generation is configured.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":           "ok",
		"geminiConfigured": genaiClient.Configured(),
	})
}

func parseInputImage(raw string) (genai.DataURL, error) {
	d, err := genai.ParseDataURL(raw)
	if err != nil {
		return genai.DataURL{}, err
	}
	return genai.NormalizeInput(d, genai.DefaultMaxInputEdge)
}

// generate runs the shared charge-then-call sequence. A request without a
// token is never charged; the client is expected to have gone through
// /credits/deduct itself. When a token is present the cost is deducted
// before the provider call, and a provider failure refunds only when the
// policy allows it.
func generate(c *fiber.Ctx, token, action, failureMessage string, parts []genai.Part) error {
	charged := 0
	if token != "" {
		cost, ok := credits.ActionCost(action)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown action"})
		}
		if _, err := creditService.Deduct(token, cost, action); err != nil {
			return creditErrorResponse(c, err)
		}
		charged = cost
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), generationTimeout)
	defer cancel()

	imageData, err := genaiClient.GenerateImage(ctx, parts)
	if err != nil {
		// The deduction has already committed; by default a failed
		// generation is not refunded.
		if charged > 0 && refundOnFailure {
			creditService.Refund(token, charged, action)
		}

		if errors.Is(err, genai.ErrNotConfigured) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "GEMINI_API_KEY not configured"})
		}

		log.Printf("generation failed (%s): %v", action, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   failureMessage,
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"imageData": imageData})
}
