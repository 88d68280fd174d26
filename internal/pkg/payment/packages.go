package payment

// Package is a purchasable credit bundle. Prices are in cents; PriceID is
// the Stripe Price the checkout session bills against.
type Package struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	PriceCents int    `json:"priceCents"`
	PriceID    string `json:"priceId"`
	Popular    bool   `json:"popular,omitempty"`
}

var creditPackages = []Package{
	{ID: "starter", Name: "Starter Pack", Credits: 10, PriceCents: 499, PriceID: "price_starter"},
	{ID: "popular", Name: "Popular Pack", Credits: 25, PriceCents: 999, PriceID: "price_popular", Popular: true},
	{ID: "pro", Name: "Pro Pack", Credits: 50, PriceCents: 1499, PriceID: "price_pro"},
	{ID: "unlimited", Name: "Mega Pack", Credits: 100, PriceCents: 2499, PriceID: "price_unlimited"},
}

// Packages returns the catalog in display order.
func Packages() []Package {
	out := make([]Package, len(creditPackages))
	copy(out, creditPackages)
	return out
}

// PackageByPriceID resolves the package a checkout request refers to.
func PackageByPriceID(priceID string) (Package, bool) {
	for _, p := range creditPackages {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Package{}, false
}
