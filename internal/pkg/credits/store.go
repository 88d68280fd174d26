package credits

import (
	"sort"
	"sync"
	"time"
)

// Entry is the balance record for one identity token.
type Entry struct {
	Token     string    `json:"token"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// LedgerStore holds per-token credit balances. It is the source of truth for
// spend authorization; all mutations go through the store mutex so a
// check-then-act deduction can never interleave with another writer.
type LedgerStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{entries: make(map[string]*Entry)}
}

// GetOrCreate returns the existing entry for token, or creates one with the
// given initial balance. Concurrent callers for the same token observe a
// single entry; the initial balance is applied exactly once.
func (s *LedgerStore) GetOrCreate(token string, initial int) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		e = &Entry{Token: token, Balance: initial, CreatedAt: time.Now()}
		s.entries[token] = e
	}
	return *e
}

// Deduct atomically decrements the balance for token. A deduction that would
// drive the balance negative is rejected as a whole and leaves the entry
// unchanged.
func (s *LedgerStore) Deduct(token string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		e = &Entry{Token: token, CreatedAt: time.Now()}
		s.entries[token] = e
	}
	if amount > e.Balance {
		return 0, &InsufficientCreditsError{Balance: e.Balance}
	}
	e.Balance -= amount
	return e.Balance, nil
}

// Credit atomically increments the balance for token and returns the new
// balance. There is no upper bound.
func (s *LedgerStore) Credit(token string, amount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		e = &Entry{Token: token, CreatedAt: time.Now()}
		s.entries[token] = e
	}
	e.Balance += amount
	return e.Balance
}

// Balance returns the current balance and whether the token is known.
func (s *LedgerStore) Balance(token string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return 0, false
	}
	return e.Balance, true
}

// Snapshot returns all entries ordered by creation time (stable on token)
// for diagnostics and persistence.
func (s *LedgerStore) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Restore replaces the store contents from a durable snapshot.
func (s *LedgerStore) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		s.entries[e.Token] = &e
	}
}
