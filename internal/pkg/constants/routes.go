package constants

// API route constants
const (
	APIBase = "/api"

	CreditsRequestFree = "/credits/request-free"
	CreditsSync        = "/credits/sync"
	CreditsDeduct      = "/credits/deduct"
	CreditsRedeemCode  = "/credits/redeem-code"

	AdminGenerateCode = "/admin/generate-code"
	AdminListCodes    = "/admin/list-codes"
	AdminCreateCode   = "/admin/create-code"
	AdminLogin        = "/admin/login"
	AdminLogout       = "/admin/logout"
	AdminCheckAuth    = "/admin/check-auth"

	TryOnModelImage    = "/tryon/model-image"
	TryOnVirtualTryOn  = "/tryon/virtual-tryon"
	TryOnPoseVariation = "/tryon/pose-variation"

	PaymentCreateCheckout = "/payment/create-checkout"
	PaymentVerify         = "/payment/verify"

	Health = "/health"
)
