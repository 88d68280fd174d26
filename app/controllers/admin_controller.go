package controllers

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
)

type generateCodeRequest struct {
	Credits int    `json:"credits" validate:"required,gt=0"`
	Code    string `json:"code" validate:"omitempty,max=64"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (r *generateCodeRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

// issueValidationMessage reports the first failing field by name so a bad
// code is not misreported as a bad email.
func issueValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Credits":
			return "Invalid credits amount"
		case "Code":
			return "Invalid code format"
		case "Email":
			return "Invalid email format"
		}
	}
	return "invalid request"
}

// HandleGenerateCode issues a new redemption code, generated or explicit.
func HandleGenerateCode(c *fiber.Ctx) error {
	var req generateCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": issueValidationMessage(err)})
	}

	code, err := creditService.IssueCode(req.Credits, req.Code, req.Email)
	if err != nil {
		return creditErrorResponse(c, err)
	}

	resp := fiber.Map{
		"success": true,
		"code":    code.Code,
		"credits": code.Credits,
	}
	if code.RestrictedEmail != "" {
		resp["email"] = code.RestrictedEmail
	} else {
		resp["email"] = nil
	}
	return c.JSON(resp)
}

// HandleListCodes returns all issued codes newest first with aggregate
// counts. Not security-sensitive; the admin group guards access.
func HandleListCodes(c *fiber.Ctx) error {
	codes, stats := creditService.ListCodes()

	list := make([]fiber.Map, 0, len(codes))
	for _, code := range codes {
		entry := fiber.Map{
			"code":        code.Code,
			"credits":     code.Credits,
			"used":        code.Used,
			"createdAt":   code.CreatedAt.UTC().Format(time.RFC3339),
			"email":       nil,
			"usedBy":      nil,
			"usedByEmail": nil,
			"usedAt":      nil,
		}
		if code.RestrictedEmail != "" {
			entry["email"] = code.RestrictedEmail
		}
		if code.Used {
			entry["usedBy"] = code.UsedByToken
			entry["usedByEmail"] = code.UsedByEmail
			if code.UsedAt != nil {
				entry["usedAt"] = code.UsedAt.UTC().Format(time.RFC3339)
			}
		}
		list = append(list, entry)
	}

	return c.JSON(fiber.Map{
		"total":  stats.Total,
		"used":   stats.Used,
		"unused": stats.Unused,
		"codes":  list,
	})
}

// HandleCreateCodePage is a browser convenience for issuing codes via GET:
// /api/admin/create-code?credits=25&code=WELCOME25&email=a@x.com
func HandleCreateCodePage(c *fiber.Ctx) error {
	c.Type("html", "utf-8")

	creditAmount, err := strconv.Atoi(c.Query("credits"))
	if err != nil || creditAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).SendString(createCodeUsagePage)
	}

	code, err := creditService.IssueCode(creditAmount, c.Query("code"), c.Query("email"))
	if err != nil {
		var msg string
		switch {
		case errors.Is(err, credits.ErrDuplicateCode):
			msg = "That code already exists."
		case errors.Is(err, credits.ErrInvalidEmail):
			msg = "The email address is not valid."
		default:
			msg = "Could not create the code."
		}
		return c.Status(fiber.StatusBadRequest).SendString(createCodeErrorPage(msg, creditAmount))
	}

	return c.SendString(createCodeSuccessPage(code))
}

// Admin auth is intentionally passwordless: the dashboard manages nothing
// more sensitive than promo codes and access is gated by the optional admin
// key middleware.

func HandleAdminLogin(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "message": "Admin login not required. Access granted."})
}

func HandleAdminLogout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "message": "Logout not required."})
}

func HandleAdminCheckAuth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"authenticated": true})
}

const createCodeUsagePage = `<html>
<head><title>Create Credit Code</title></head>
<body style="font-family: Arial; padding: 40px; max-width: 600px; margin: 0 auto;">
<h1>Missing credits amount</h1>
<p>Usage:</p>
<ul>
<li><code>/api/admin/create-code?credits=25</code></li>
<li><code>/api/admin/create-code?credits=50&amp;code=WELCOME50</code></li>
<li><code>/api/admin/create-code?credits=25&amp;email=user@example.com</code></li>
</ul>
<p><a href="/api/admin/create-code?credits=25">Example: create a 25 credit code</a></p>
</body>
</html>`

func createCodeErrorPage(message string, creditAmount int) string {
	return fmt.Sprintf(`<html>
<head><title>Error</title></head>
<body style="font-family: Arial; padding: 40px; max-width: 600px; margin: 0 auto;">
<h1>Could not create code</h1>
<p>%s</p>
<p><a href="/api/admin/create-code?credits=%d">Try again</a></p>
</body>
</html>`, html.EscapeString(message), creditAmount)
}

func createCodeSuccessPage(code credits.Code) string {
	restriction := "None (anyone can use)"
	if code.RestrictedEmail != "" {
		restriction = html.EscapeString(code.RestrictedEmail)
	}
	return fmt.Sprintf(`<html>
<head><title>Code Created</title></head>
<body style="font-family: Arial; padding: 40px; max-width: 600px; margin: 0 auto;">
<h1>Code created</h1>
<div style="background: #f3f4f6; padding: 15px; border-radius: 5px; font-family: monospace; font-size: 24px; font-weight: bold; text-align: center;">%s</div>
<p><strong>Credits:</strong> %d</p>
<p><strong>Email restriction:</strong> %s</p>
<p>Users can enter this code in the app to receive credits. Copy it somewhere safe; it is shown only once.</p>
<p>
<a href="/api/admin/create-code?credits=25">Create another (25 credits)</a> |
<a href="/api/admin/create-code?credits=50">Create another (50 credits)</a>
</p>
</body>
</html>`, html.EscapeString(code.Code), code.Credits, restriction)
}
