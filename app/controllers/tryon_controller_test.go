package controllers

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
	"github.com/FitSnapApp/FitSnap/internal/pkg/genai"
)

const fakeGeminiResponse = `{
	"candidates": [{
		"content": {"parts": [{"inlineData": {"mimeType": "image/png", "data": "R0VORVJBVEVE"}}]},
		"finishReason": "STOP"
	}]
}`

// testImage is a data URL whose payload is not a decodable image, so input
// normalization passes it through untouched.
func testImage() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
}

type tryOnFixture struct {
	app      *fiber.App
	svc      *credits.Service
	requests *int64
}

func newTryOnTestApp(t *testing.T, providerStatus int, providerBody string, refundFailed bool) tryOnFixture {
	t.Helper()

	var requests int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(providerStatus)
		_, _ = w.Write([]byte(providerBody))
	}))
	t.Cleanup(upstream.Close)

	svc := credits.NewService(credits.Config{FreeTrialCredits: credits.DefaultFreeTrialCredits})
	InitializeCreditController(svc)
	InitializeTryOnController(&genai.Client{
		APIKey:     "test-key",
		BaseURL:    upstream.URL,
		Model:      "gemini-test",
		HTTPClient: upstream.Client(),
	}, refundFailed)

	app := fiber.New()
	app.Post("/api/tryon/model-image", HandleModelImage)
	app.Post("/api/tryon/virtual-tryon", HandleVirtualTryOn)
	app.Post("/api/tryon/pose-variation", HandlePoseVariation)
	app.Get("/api/health", HandleHealth)
	return tryOnFixture{app: app, svc: svc, requests: &requests}
}

func TestHandleModelImageWithoutToken(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	resp, body := postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{
		"userImage": testImage(),
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "data:image/png;base64,R0VORVJBVEVE", body["imageData"])
	assert.EqualValues(t, 1, atomic.LoadInt64(fx.requests))
}

func TestHandleModelImageChargesToken(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	resp, body := postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{
		"userImage": testImage(),
		"token":     credits.FreeTrialToken,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["imageData"])

	// Model generation costs 2 of the 5 trial credits.
	res, err := fx.svc.Sync(credits.FreeTrialToken, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Balance)
}

func TestHandleModelImageInsufficientCredits(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	// Burn the trial down to 1 credit.
	_, err := fx.svc.Deduct(credits.FreeTrialToken, 4, "setup")
	require.NoError(t, err)

	resp, body := postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{
		"userImage": testImage(),
		"token":     credits.FreeTrialToken,
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "Insufficient credits", body["error"])
	assert.Equal(t, float64(1), body["balance"])

	// The provider was never called.
	assert.EqualValues(t, 0, atomic.LoadInt64(fx.requests))
}

func TestHandleModelImageProviderFailureNoRefund(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, false)

	resp, body := postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{
		"userImage": testImage(),
		"token":     credits.FreeTrialToken,
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to generate model image", body["error"])
	assert.NotEmpty(t, body["details"])

	// No refund by default: the charge stands.
	res, err := fx.svc.Sync(credits.FreeTrialToken, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Balance)
}

func TestHandleModelImageProviderFailureRefund(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, true)

	resp, _ := postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{
		"userImage": testImage(),
		"token":     credits.FreeTrialToken,
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	res, err := fx.svc.Sync(credits.FreeTrialToken, "")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Balance)
}

func TestHandleModelImageBadInput(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	resp, body := postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing userImage", body["error"])

	resp, body = postJSON(t, fx.app, "/api/tryon/model-image", fiber.Map{
		"userImage": "http://example.com/image.png",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid image data", body["error"])
}

func TestHandleVirtualTryOn(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	resp, body := postJSON(t, fx.app, "/api/tryon/virtual-tryon", fiber.Map{
		"modelImage": testImage(),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing modelImage or garmentImage", body["error"])

	resp, body = postJSON(t, fx.app, "/api/tryon/virtual-tryon", fiber.Map{
		"modelImage":   testImage(),
		"garmentImage": testImage(),
		"token":        credits.FreeTrialToken,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["imageData"])

	// Try-on costs 3.
	res, err := fx.svc.Sync(credits.FreeTrialToken, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Balance)
}

func TestHandlePoseVariation(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	resp, body := postJSON(t, fx.app, "/api/tryon/pose-variation", fiber.Map{
		"tryOnImage":      testImage(),
		"poseInstruction": "side profile",
		"token":           credits.FreeTrialToken,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["imageData"])

	// Pose variation costs 1.
	res, err := fx.svc.Sync(credits.FreeTrialToken, "")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Balance)
}

func TestHandleHealth(t *testing.T) {
	fx := newTryOnTestApp(t, http.StatusOK, fakeGeminiResponse, false)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp, err := fx.app.Test(req, 5000)
	require.NoError(t, err)
	body := decodeJSONBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["geminiConfigured"])
}

func TestGenerateNotConfigured(t *testing.T) {
	svc := credits.NewService(credits.Config{FreeTrialCredits: credits.DefaultFreeTrialCredits})
	InitializeCreditController(svc)
	InitializeTryOnController(&genai.Client{HTTPClient: http.DefaultClient}, false)

	app := fiber.New()
	app.Post("/api/tryon/model-image", HandleModelImage)
	app.Get("/api/health", HandleHealth)

	resp, body := postJSON(t, app, "/api/tryon/model-image", fiber.Map{
		"userImage": testImage(),
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "GEMINI_API_KEY not configured", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	healthResp, err := app.Test(req, 5000)
	require.NoError(t, err)
	health := decodeJSONBody(t, healthResp)
	assert.Equal(t, false, health["geminiConfigured"])
}
