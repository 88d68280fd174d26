package credits

import (
	"log"
	"sync"
	"time"
)

// FreeTrialToken is the canonical trial identity used by legacy clients that
// never claimed an origin-scoped trial. Its ledger entry is seeded with the
// configured free balance on first contact.
const FreeTrialToken = "free_trial"

// DefaultFreeTrialCredits matches the legacy service grant.
const DefaultFreeTrialCredits = 5

// Costed actions and their prices in credits.
const (
	ActionModelGeneration = "model_generation"
	ActionVirtualTryOn    = "virtual_tryon"
	ActionPoseVariation   = "pose_variation"
)

var actionCosts = map[string]int{
	ActionModelGeneration: 2,
	ActionVirtualTryOn:    3,
	ActionPoseVariation:   1,
}

// ActionCost returns the credit price for a known action label.
func ActionCost(action string) (int, bool) {
	cost, ok := actionCosts[action]
	return cost, ok
}

// PaymentRecord marks a checkout session as reconciled so a retried
// verification can never re-credit.
type PaymentRecord struct {
	SessionID    string    `json:"sessionId"`
	Token        string    `json:"token"`
	Credits      int       `json:"credits"`
	ReconciledAt time.Time `json:"reconciledAt"`
}

// SyncResult is the outcome of a balance sync.
type SyncResult struct {
	Token   string
	Balance int
}

// RedeemResult is the outcome of a successful code redemption.
type RedeemResult struct {
	CreditsAdded int
	NewBalance   int
}

// ReconcileResult is the outcome of a payment reconciliation.
type ReconcileResult struct {
	CreditsAdded    int
	NewBalance      int
	AlreadyCredited bool
}

// Config carries the service knobs.
type Config struct {
	// FreeTrialCredits is the grant for new trial claims; zero means
	// DefaultFreeTrialCredits.
	FreeTrialCredits int
	// DataDir is where JSON snapshots live. Empty disables persistence.
	DataDir string
}

// Service is the entitlement façade: the only mutation surface over the
// ledger, the code registry and the free-trial registry. Stores are owned by
// the service and passed around explicitly, never as package globals.
type Service struct {
	ledger      *LedgerStore
	codes       *CodeRegistry
	trials      *TrialRegistry
	snapshots   *SnapshotWriter
	freeCredits int

	payMu    sync.Mutex
	payments map[string]*PaymentRecord
}

// NewService builds a service, restoring state from the snapshot directory
// when one is configured. A corrupt or unreadable snapshot degrades to an
// empty store rather than failing startup.
func NewService(cfg Config) *Service {
	free := cfg.FreeTrialCredits
	if free <= 0 {
		free = DefaultFreeTrialCredits
	}

	ledger := NewLedgerStore()
	s := &Service{
		ledger:      ledger,
		codes:       NewCodeRegistry(),
		trials:      NewTrialRegistry(ledger, free),
		snapshots:   NewSnapshotWriter(cfg.DataDir),
		freeCredits: free,
		payments:    make(map[string]*PaymentRecord),
	}
	s.restore()
	return s
}

func (s *Service) restore() {
	if s.snapshots == nil {
		return
	}

	var entries []Entry
	if err := s.snapshots.Load(ledgerFile, &entries); err != nil {
		log.Printf("credits: could not load ledger snapshot: %v", err)
	} else if len(entries) > 0 {
		s.ledger.Restore(entries)
	}

	var codes []Code
	if err := s.snapshots.Load(codesFile, &codes); err != nil {
		log.Printf("credits: could not load code snapshot: %v", err)
	} else if len(codes) > 0 {
		s.codes.Restore(codes)
	}

	var claims []TrialClaim
	if err := s.snapshots.Load(trialsFile, &claims); err != nil {
		log.Printf("credits: could not load trial snapshot: %v", err)
	} else if len(claims) > 0 {
		s.trials.Restore(claims)
	}

	var payments []PaymentRecord
	if err := s.snapshots.Load(paymentsFile, &payments); err != nil {
		log.Printf("credits: could not load payment snapshot: %v", err)
	} else {
		for i := range payments {
			p := payments[i]
			s.payments[p.SessionID] = &p
		}
	}
}

// initialBalance seeds the canonical trial token; arbitrary unknown tokens
// start at zero so supplied tokens can never fabricate credits.
func (s *Service) initialBalance(token string) int {
	if token == FreeTrialToken {
		return s.freeCredits
	}
	return 0
}

// Sync resolves the current balance for a token. An empty token with a known
// origin delegates to the free-trial claim; a non-empty unknown token gets a
// zero-balance entry.
func (s *Service) Sync(token, origin string) (SyncResult, error) {
	if token == "" {
		claim, err := s.RequestFreeTrial(origin)
		if err != nil {
			return SyncResult{}, err
		}
		return SyncResult{Token: claim.Token, Balance: claim.Balance}, nil
	}

	entry := s.ledger.GetOrCreate(token, s.initialBalance(token))
	s.persistLedger()
	return SyncResult{Token: token, Balance: entry.Balance}, nil
}

// RequestFreeTrial claims the one-time free grant for an origin key.
func (s *Service) RequestFreeTrial(origin string) (ClaimResult, error) {
	claim, err := s.trials.Claim(origin)
	if err != nil {
		return ClaimResult{}, err
	}
	if !claim.AlreadyClaimed {
		log.Printf("credits: granted %d trial credits to %s", s.freeCredits, claim.Token)
		s.persistLedger()
		s.persistTrials()
	}
	return claim, nil
}

// Deduct spends credits for a costed action. This is the sole spend path;
// collaborators must call it before performing the action.
func (s *Service) Deduct(token string, amount int, action string) (int, error) {
	if token == "" {
		return 0, validationErrorf("token is required")
	}
	if amount <= 0 {
		return 0, validationErrorf("amount must be a positive number of credits, got %d", amount)
	}

	s.ledger.GetOrCreate(token, s.initialBalance(token))
	newBalance, err := s.ledger.Deduct(token, amount)
	if err != nil {
		return 0, err
	}

	log.Printf("credits: deducted %d for %s, new balance %d", amount, action, newBalance)
	s.persistLedger()
	return newBalance, nil
}

// Refund returns credits after a failed downstream action. Only used when
// the refund-on-failure policy is enabled.
func (s *Service) Refund(token string, amount int, action string) int {
	newBalance := s.ledger.Credit(token, amount)
	log.Printf("credits: refunded %d for failed %s, new balance %d", amount, action, newBalance)
	s.persistLedger()
	return newBalance
}

// RedeemCode applies a redemption code to the caller's ledger entry. The
// registry marks the code used first; the grant happens only after that gate
// is won, so the code can never pay out twice.
func (s *Service) RedeemCode(code, token, email string) (RedeemResult, error) {
	if token == "" {
		return RedeemResult{}, validationErrorf("token is required")
	}
	if code == "" {
		return RedeemResult{}, validationErrorf("code is required")
	}

	consumed, err := s.codes.Consume(code, token, email)
	if err != nil {
		return RedeemResult{}, err
	}

	s.ledger.GetOrCreate(token, s.initialBalance(token))
	newBalance := s.ledger.Credit(token, consumed.Credits)

	log.Printf("credits: redeemed code %s for %d credits, new balance %d", consumed.Code, consumed.Credits, newBalance)
	s.persistLedger()
	s.persistCodes()

	return RedeemResult{CreditsAdded: consumed.Credits, NewBalance: newBalance}, nil
}

// IssueCode registers a new redemption code.
func (s *Service) IssueCode(creditAmount int, explicitCode, restrictedEmail string) (Code, error) {
	code, err := s.codes.Issue(creditAmount, explicitCode, restrictedEmail)
	if err != nil {
		return Code{}, err
	}

	if code.RestrictedEmail != "" {
		log.Printf("credits: issued code %s for %d credits (restricted to %s)", code.Code, code.Credits, code.RestrictedEmail)
	} else {
		log.Printf("credits: issued code %s for %d credits", code.Code, code.Credits)
	}
	s.persistCodes()
	return code, nil
}

// ListCodes returns all codes newest first plus aggregate counts.
func (s *Service) ListCodes() ([]Code, CodeStats) {
	return s.codes.List()
}

// ReconcilePayment credits the ledger for a verified checkout session,
// exactly once per session ID. A retried call for an already-reconciled
// session reports the current balance without re-crediting.
func (s *Service) ReconcilePayment(sessionID, token string, creditAmount int) (ReconcileResult, error) {
	if sessionID == "" || token == "" {
		return ReconcileResult{}, validationErrorf("session id and token are required")
	}
	if creditAmount <= 0 {
		return ReconcileResult{}, validationErrorf("credits must be a positive amount, got %d", creditAmount)
	}

	s.payMu.Lock()
	defer s.payMu.Unlock()

	if _, done := s.payments[sessionID]; done {
		entry := s.ledger.GetOrCreate(token, s.initialBalance(token))
		return ReconcileResult{NewBalance: entry.Balance, AlreadyCredited: true}, nil
	}

	s.ledger.GetOrCreate(token, s.initialBalance(token))
	newBalance := s.ledger.Credit(token, creditAmount)
	s.payments[sessionID] = &PaymentRecord{
		SessionID:    sessionID,
		Token:        token,
		Credits:      creditAmount,
		ReconciledAt: time.Now(),
	}

	log.Printf("credits: reconciled session %s for %d credits, new balance %d", sessionID, creditAmount, newBalance)
	s.persistLedger()
	s.persistPayments()

	return ReconcileResult{CreditsAdded: creditAmount, NewBalance: newBalance}, nil
}

// Persistence is write-through and fire-and-forget: the in-memory mutation
// has already committed, a failed write only costs crash recovery fidelity.

func (s *Service) persistLedger() {
	s.persistAsync(ledgerFile, func() interface{} { return s.ledger.Snapshot() })
}

func (s *Service) persistCodes() {
	s.persistAsync(codesFile, func() interface{} {
		codes, _ := s.codes.List()
		return codes
	})
}

func (s *Service) persistTrials() {
	s.persistAsync(trialsFile, func() interface{} { return s.trials.Snapshot() })
}

// Callers hold payMu, and Capture runs materialize synchronously, so the
// copy below is race-free.
func (s *Service) persistPayments() {
	s.persistAsync(paymentsFile, func() interface{} {
		out := make([]PaymentRecord, 0, len(s.payments))
		for _, p := range s.payments {
			out = append(out, *p)
		}
		return out
	})
}

func (s *Service) persistAsync(name string, materialize func() interface{}) {
	if s.snapshots == nil {
		return
	}
	gen, v := s.snapshots.Capture(name, materialize)
	go func() {
		if err := s.snapshots.Write(name, gen, v); err != nil {
			log.Printf("credits: snapshot write %s failed: %v", name, err)
		}
	}()
}
