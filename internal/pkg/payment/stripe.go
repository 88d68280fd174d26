package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FitSnapApp/FitSnap/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

// ErrNotConfigured is returned when no secret key is available; the handlers
// map it to a 500 "provider not configured".
var ErrNotConfigured = errors.New("STRIPE_SECRET_KEY is not configured")

// StripeClient drives the Checkout Sessions API over its form-encoded REST
// surface.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// CheckoutSession is the subset of the Stripe session object the service
// needs: the redirect URL after creation and the paid state plus metadata on
// verification.
type CheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Metadata          map[string]string `json:"metadata"`
}

// Paid reports whether the session has been settled.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether checkout sessions can be created at all.
func (c *StripeClient) Configured() bool {
	return c.SecretKey != ""
}

// CreateCheckoutSession opens a payment session for one credit package. The
// token and credit amount travel in the session metadata so verification can
// reconcile without any local pending-payment state.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, pkg Package, token, successURL, cancelURL string) (*CheckoutSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", token)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(pkg.PriceCents))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("%s (%d credits)", pkg.Name, pkg.Credits))
	form.Set("metadata[token]", token)
	form.Set("metadata[credits]", strconv.Itoa(pkg.Credits))
	form.Set("metadata[package_id]", pkg.ID)

	return c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form)
}

// GetCheckoutSession fetches a session for payment verification.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}

	return c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values) (*CheckoutSession, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode stripe response: %w", err)
	}
	return &session, nil
}
