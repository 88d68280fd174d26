package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FitSnapApp/FitSnap/internal/pkg/env"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash-image"
)

// ErrNotConfigured is returned when no API key is available. Handlers map it
// to a 500 so the trial UI keeps working against an unconfigured backend.
var ErrNotConfigured = errors.New("GEMINI_API_KEY is not configured")

// Client talks to the Gemini generateContent REST API. The call is a single
// bounded attempt; retries are the caller's decision and none are made here.
type Client struct {
	APIKey  string
	BaseURL string
	Model   string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:  strings.TrimSpace(env.GetEnv("GEMINI_API_KEY", "")),
		BaseURL: strings.TrimRight(env.GetEnv("GEMINI_API_BASE_URL", defaultBaseURL), "/"),
		Model:   strings.TrimSpace(env.GetEnv("GEMINI_MODEL", defaultModel)),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Configured reports whether generation requests can be made at all.
func (c *Client) Configured() bool {
	return c.APIKey != ""
}

// Part is one element of a generation request: either text or inline image
// data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ImagePart wraps a parsed data URL as an inline request part.
func ImagePart(d DataURL) Part {
	return Part{InlineData: &InlineData{MimeType: d.MimeType, Data: d.Data}}
}

// TextPart wraps a prompt string as a request part.
func TextPart(text string) Part {
	return Part{Text: text}
}

type generateRequest struct {
	// The API declares contents as repeated; a bare object is rejected.
	Contents         []generateContent `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateContent struct {
	Parts []Part `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateResponse struct {
	PromptFeedback *struct {
		BlockReason        string `json:"blockReason"`
		BlockReasonMessage string `json:"blockReasonMessage"`
	} `json:"promptFeedback"`
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// GenerateImage sends the parts to the model and returns the generated image
// as a data URL. Failures are typed: BlockedError when the prompt was
// refused, NoImageError when the model answered without an image.
func (c *Client) GenerateImage(ctx context.Context, parts []Part) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []generateContent{{Parts: parts}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"IMAGE"}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64<<20))
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini request failed: status=%d body=%s", httpResp.StatusCode, truncate(string(respBody), 512))
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	return extractImage(&resp)
}

// extractImage mirrors the upstream response contract: a block reason beats
// everything, then the first inline image wins, then a non-STOP finish
// reason, then whatever text the model produced instead.
func extractImage(resp *generateResponse) (string, error) {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &BlockedError{Reason: fb.BlockReason, Message: fb.BlockReasonMessage}
	}

	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return DataURL{MimeType: part.InlineData.MimeType, Data: part.InlineData.Data}.String(), nil
			}
		}
	}

	if len(resp.Candidates) > 0 {
		if reason := resp.Candidates[0].FinishReason; reason != "" && reason != "STOP" {
			return "", &NoImageError{FinishReason: reason}
		}
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	return "", &NoImageError{Text: strings.TrimSpace(text.String())}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// BlockedError reports a safety block before generation started.
type BlockedError struct {
	Reason  string
	Message string
}

func (e *BlockedError) Error() string {
	msg := fmt.Sprintf("request was blocked, reason: %s", e.Reason)
	if e.Message != "" {
		msg += ". " + e.Message
	}
	return msg
}

// NoImageError reports a response that finished without an image, either
// with an unexpected finish reason or with text instead.
type NoImageError struct {
	FinishReason string
	Text         string
}

func (e *NoImageError) Error() string {
	if e.FinishReason != "" {
		return fmt.Sprintf("image generation stopped unexpectedly, reason: %s (this often relates to safety settings)", e.FinishReason)
	}
	if e.Text != "" {
		return fmt.Sprintf("the model did not return an image, it responded with text: %q", e.Text)
	}
	return "the model did not return an image; this can happen due to safety filters or if the request is too complex"
}
