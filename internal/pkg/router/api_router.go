package router

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/FitSnapApp/FitSnap/app/controllers"
	"github.com/FitSnapApp/FitSnap/internal/pkg/constants"
	"github.com/FitSnapApp/FitSnap/internal/pkg/credits"
	"github.com/FitSnapApp/FitSnap/internal/pkg/env"
	"github.com/FitSnapApp/FitSnap/internal/pkg/genai"
	"github.com/FitSnapApp/FitSnap/internal/pkg/middleware"
	"github.com/FitSnapApp/FitSnap/internal/pkg/payment"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Wire the entitlement service and provider clients once; controllers
	// receive their handles explicitly instead of reaching for globals.
	svc := credits.NewService(credits.Config{
		FreeTrialCredits: envInt("FREE_TRIAL_CREDITS", credits.DefaultFreeTrialCredits),
		DataDir:          env.GetEnv("DATA_DIR", "./data"),
	})
	controllers.InitializeCreditController(svc)

	refundFailed := env.GetEnv("REFUND_FAILED_GENERATIONS", "false") == "true"
	gateway := genai.NewClientFromEnv()
	if !gateway.Configured() {
		log.Print("GEMINI_API_KEY not configured, generation endpoints will return 500")
	}
	controllers.InitializeTryOnController(gateway, refundFailed)

	controllers.InitializePaymentController(payment.NewStripeClientFromEnv())

	api := app.Group(constants.APIBase, limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})
	api.Get(constants.Health, controllers.HandleHealth)

	// Credits
	api.Post(constants.CreditsRequestFree, controllers.HandleRequestFreeCredits)
	api.Post(constants.CreditsSync, controllers.HandleSyncCredits)
	api.Post(constants.CreditsDeduct, controllers.HandleDeductCredits)
	api.Post(constants.CreditsRedeemCode, controllers.HandleRedeemCode)

	// Admin (optionally guarded by ADMIN_API_KEY)
	adminKey := middleware.AdminKeyMiddleware()
	api.Post(constants.AdminGenerateCode, adminKey, controllers.HandleGenerateCode)
	api.Get(constants.AdminListCodes, adminKey, controllers.HandleListCodes)
	api.Get(constants.AdminCreateCode, adminKey, controllers.HandleCreateCodePage)
	api.Post(constants.AdminLogin, controllers.HandleAdminLogin)
	api.Post(constants.AdminLogout, controllers.HandleAdminLogout)
	api.Get(constants.AdminCheckAuth, controllers.HandleAdminCheckAuth)

	// Generation
	api.Post(constants.TryOnModelImage, controllers.HandleModelImage)
	api.Post(constants.TryOnVirtualTryOn, controllers.HandleVirtualTryOn)
	api.Post(constants.TryOnPoseVariation, controllers.HandlePoseVariation)

	// Payments
	api.Post(constants.PaymentCreateCheckout, controllers.HandleCreateCheckout)
	api.Post(constants.PaymentVerify, controllers.HandleVerifyPayment)
}

func envInt(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return n
}
