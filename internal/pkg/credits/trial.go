package credits

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TrialClaim records a one-time free grant for one origin key (client IP).
type TrialClaim struct {
	OriginKey string    `json:"originKey"`
	Token     string    `json:"token"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// ClaimResult is returned by TrialRegistry.Claim. A repeat claim carries the
// existing token and its current balance instead of a fresh grant.
type ClaimResult struct {
	Token          string
	Balance        int
	AlreadyClaimed bool
}

// TrialRegistry enforces at most one free-trial grant per origin. Claims and
// the initial ledger grant happen under the registry mutex so two concurrent
// first-time requests from the same origin cannot both win.
type TrialRegistry struct {
	mu          sync.Mutex
	claims      map[string]*TrialClaim
	ledger      *LedgerStore
	freeCredits int
}

func NewTrialRegistry(ledger *LedgerStore, freeCredits int) *TrialRegistry {
	return &TrialRegistry{
		claims:      make(map[string]*TrialClaim),
		ledger:      ledger,
		freeCredits: freeCredits,
	}
}

// Claim grants the configured free balance to a fresh token for a new origin,
// or returns the existing token's current balance for a repeat claim.
func (r *TrialRegistry) Claim(originKey string) (ClaimResult, error) {
	if originKey == "" {
		return ClaimResult{}, validationErrorf("origin key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.claims[originKey]; ok {
		entry := r.ledger.GetOrCreate(existing.Token, 0)
		return ClaimResult{Token: existing.Token, Balance: entry.Balance, AlreadyClaimed: true}, nil
	}

	token := "tok_" + uuid.NewString()
	entry := r.ledger.GetOrCreate(token, r.freeCredits)
	r.claims[originKey] = &TrialClaim{
		OriginKey: originKey,
		Token:     token,
		ClaimedAt: time.Now(),
	}
	return ClaimResult{Token: token, Balance: entry.Balance}, nil
}

// Snapshot returns all claims for persistence, ordered by claim time.
func (r *TrialRegistry) Snapshot() []TrialClaim {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrialClaim, 0, len(r.claims))
	for _, c := range r.claims {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClaimedAt.Equal(out[j].ClaimedAt) {
			return out[i].OriginKey < out[j].OriginKey
		}
		return out[i].ClaimedAt.Before(out[j].ClaimedAt)
	})
	return out
}

// Restore replaces the registry contents from a durable snapshot.
func (r *TrialRegistry) Restore(claims []TrialClaim) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.claims = make(map[string]*TrialClaim, len(claims))
	for i := range claims {
		c := claims[i]
		r.claims[c.OriginKey] = &c
	}
}
