package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
)

// newCreditTestApp builds a fiber app with the credit routes backed by a
// fresh in-memory service. No DataDir, so nothing is persisted.
func newCreditTestApp(t *testing.T) (*fiber.App, *credits.Service) {
	t.Helper()

	svc := credits.NewService(credits.Config{FreeTrialCredits: credits.DefaultFreeTrialCredits})
	InitializeCreditController(svc)

	app := fiber.New()
	app.Post("/api/credits/request-free", HandleRequestFreeCredits)
	app.Post("/api/credits/sync", HandleSyncCredits)
	app.Post("/api/credits/deduct", HandleDeductCredits)
	app.Post("/api/credits/redeem-code", HandleRedeemCode)
	return app, svc
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	return resp, decodeJSONBody(t, resp)
}

func decodeJSONBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func TestHandleRequestFreeCredits(t *testing.T) {
	app, _ := newCreditTestApp(t)

	headers := map[string]string{"X-Forwarded-For": "203.0.113.10"}
	resp, body := postJSON(t, app, "/api/credits/request-free", fiber.Map{}, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(5), body["balance"])
	assert.Equal(t, false, body["alreadyClaimed"])

	token, _ := body["token"].(string)
	require.True(t, strings.HasPrefix(token, "tok_"), "token %q", token)

	// Same origin claims again: same token, no second grant.
	resp, body = postJSON(t, app, "/api/credits/request-free", fiber.Map{}, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["alreadyClaimed"])
	assert.Equal(t, token, body["token"])
	assert.Equal(t, float64(5), body["balance"])

	// A different origin gets its own token.
	resp, body = postJSON(t, app, "/api/credits/request-free", fiber.Map{}, map[string]string{"X-Forwarded-For": "203.0.113.11"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["alreadyClaimed"])
	assert.NotEqual(t, token, body["token"])
}

func TestHandleRequestFreeCreditsPrefersCloudflareHeader(t *testing.T) {
	app, _ := newCreditTestApp(t)

	headers := map[string]string{
		"CF-Connecting-IP": "198.51.100.7",
		"X-Forwarded-For":  "203.0.113.10, 10.0.0.1",
	}
	_, body := postJSON(t, app, "/api/credits/request-free", fiber.Map{}, headers)
	token := body["token"]

	// Same CF IP behind a different forwarded chain is still the same origin.
	_, body = postJSON(t, app, "/api/credits/request-free", fiber.Map{}, map[string]string{
		"CF-Connecting-IP": "198.51.100.7",
		"X-Forwarded-For":  "192.0.2.99",
	})
	assert.Equal(t, true, body["alreadyClaimed"])
	assert.Equal(t, token, body["token"])
}

func TestHandleSyncCredits(t *testing.T) {
	app, svc := newCreditTestApp(t)

	resp, body := postJSON(t, app, "/api/credits/sync", fiber.Map{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing token", body["error"])

	// Unknown token syncs to a zero balance entry.
	resp, body = postJSON(t, app, "/api/credits/sync", fiber.Map{"token": "tok_unknown"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["balance"])
	assert.Equal(t, "tok_unknown", body["token"])

	// The canonical trial token seeds the free balance.
	resp, body = postJSON(t, app, "/api/credits/sync", fiber.Map{"token": credits.FreeTrialToken}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["balance"])

	// A token with real activity reports the server-side number.
	_, err := svc.Deduct(credits.FreeTrialToken, 2, credits.ActionModelGeneration)
	require.NoError(t, err)
	resp, body = postJSON(t, app, "/api/credits/sync", fiber.Map{"token": credits.FreeTrialToken}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["balance"])
}

func TestHandleDeductCredits(t *testing.T) {
	app, _ := newCreditTestApp(t)

	resp, body := postJSON(t, app, "/api/credits/deduct", fiber.Map{"token": "tok_x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required fields", body["error"])

	resp, body = postJSON(t, app, "/api/credits/deduct", fiber.Map{"amount": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required fields", body["error"])

	resp, body = postJSON(t, app, "/api/credits/deduct", fiber.Map{
		"token":  credits.FreeTrialToken,
		"amount": 3,
		"action": credits.ActionVirtualTryOn,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["newBalance"])

	// Overdraft rejected with the current balance in the payload.
	resp, body = postJSON(t, app, "/api/credits/deduct", fiber.Map{
		"token":  credits.FreeTrialToken,
		"amount": 10,
		"action": credits.ActionVirtualTryOn,
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "Insufficient credits", body["error"])
	assert.Equal(t, float64(2), body["balance"])

	// Zero amounts are rejected before touching the ledger.
	resp, _ = postJSON(t, app, "/api/credits/deduct", fiber.Map{
		"token":  credits.FreeTrialToken,
		"amount": 0,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRedeemCode(t *testing.T) {
	app, svc := newCreditTestApp(t)

	_, err := svc.IssueCode(50, "WELCOME50", "")
	require.NoError(t, err)

	resp, body := postJSON(t, app, "/api/credits/redeem-code", fiber.Map{"token": "tok_a"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing code or token", body["error"])

	resp, body = postJSON(t, app, "/api/credits/redeem-code", fiber.Map{"code": "WELCOME50", "token": "tok_a"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email is required to redeem code", body["error"])

	resp, body = postJSON(t, app, "/api/credits/redeem-code", fiber.Map{
		"code":  "welcome50",
		"token": "tok_a",
		"email": "User@Example.com",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(50), body["creditsAdded"])
	assert.Equal(t, float64(50), body["newBalance"])

	// Second redemption of the same code fails terminally.
	resp, body = postJSON(t, app, "/api/credits/redeem-code", fiber.Map{
		"code":  "WELCOME50",
		"token": "tok_b",
		"email": "user@example.com",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Credit code already used", body["error"])

	resp, body = postJSON(t, app, "/api/credits/redeem-code", fiber.Map{
		"code":  "NOPE",
		"token": "tok_a",
		"email": "user@example.com",
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Invalid credit code", body["error"])

	resp, body = postJSON(t, app, "/api/credits/redeem-code", fiber.Map{
		"code":  "WELCOME50",
		"token": "tok_a",
		"email": "not-an-email",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid email format", body["error"])
}

func TestHandleRedeemCodeEmailRestriction(t *testing.T) {
	app, svc := newCreditTestApp(t)

	_, err := svc.IssueCode(25, "VIP25", "vip@example.com")
	require.NoError(t, err)

	resp, body := postJSON(t, app, "/api/credits/redeem-code", fiber.Map{
		"code":  "VIP25",
		"token": "tok_a",
		"email": "other@example.com",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body["error"], "restricted")

	resp, body = postJSON(t, app, "/api/credits/redeem-code", fiber.Map{
		"code":  "VIP25",
		"token": "tok_a",
		"email": "VIP@example.com",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(25), body["creditsAdded"])
}
