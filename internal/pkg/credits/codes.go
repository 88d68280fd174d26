package credits

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Code is a single-use credit grant, optionally restricted to one email.
type Code struct {
	Code            string     `json:"code"`
	Credits         int        `json:"credits"`
	RestrictedEmail string     `json:"email,omitempty"`
	Used            bool       `json:"used"`
	UsedByToken     string     `json:"usedBy,omitempty"`
	UsedByEmail     string     `json:"usedByEmail,omitempty"`
	UsedAt          *time.Time `json:"usedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CodeStats aggregates registry counts for the admin listing.
type CodeStats struct {
	Total  int `json:"total"`
	Used   int `json:"used"`
	Unused int `json:"unused"`
}

// CodeRegistry holds issued redemption codes. The key space is
// case-canonical: codes are normalized to upper case at the boundary so
// lookups never scan.
type CodeRegistry struct {
	mu    sync.Mutex
	codes map[string]*Code
}

func NewCodeRegistry() *CodeRegistry {
	return &CodeRegistry{codes: make(map[string]*Code)}
}

// Generated codes use the same shape as the legacy service: 13 upper-case
// alphanumerics.
const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 13
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeCode maps a user-supplied code to its canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeEmail maps a user-supplied email to its canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the (already normalized) email matches the
// local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// GenerateCode creates a cryptographically random upper-case alphanumeric
// code. Rejection sampling avoids modulo bias; 252 is the largest multiple
// of 36 below 256.
func GenerateCode() (string, error) {
	const maxRandomByte = 252

	code := make([]byte, codeLength)
	buf := make([]byte, codeLength*2)
	written := 0

	for written < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			code[written] = codeAlphabet[int(b)%len(codeAlphabet)]
			written++
			if written == codeLength {
				break
			}
		}
	}

	return string(code), nil
}

// Issue registers a new redemption code worth the given credits. An empty
// explicit code means generate one; explicit codes are rejected on collision
// while generated codes retry.
func (r *CodeRegistry) Issue(creditAmount int, explicitCode, restrictedEmail string) (Code, error) {
	if creditAmount <= 0 {
		return Code{}, validationErrorf("credits must be a positive amount, got %d", creditAmount)
	}

	email := NormalizeEmail(restrictedEmail)
	if email != "" && !ValidEmail(email) {
		return Code{}, ErrInvalidEmail
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := NormalizeCode(explicitCode)
	if key != "" {
		if _, exists := r.codes[key]; exists {
			return Code{}, ErrDuplicateCode
		}
	} else {
		for attempt := 0; ; attempt++ {
			generated, err := GenerateCode()
			if err != nil {
				return Code{}, err
			}
			if _, exists := r.codes[generated]; !exists {
				key = generated
				break
			}
			if attempt >= 4 {
				return Code{}, fmt.Errorf("could not generate a unique credit code")
			}
		}
	}

	c := &Code{
		Code:            key,
		Credits:         creditAmount,
		RestrictedEmail: email,
		CreatedAt:       time.Now(),
	}
	r.codes[key] = c
	return *c, nil
}

// Consume validates and atomically marks a code as used. Marking used is the
// gate for the credit grant: the caller credits the ledger only after Consume
// returns without error, so a crash between the two steps can never
// double-apply the grant.
func (r *CodeRegistry) Consume(code, token, email string) (Code, error) {
	key := NormalizeCode(code)
	normEmail := NormalizeEmail(email)
	if !ValidEmail(normEmail) {
		return Code{}, ErrInvalidEmail
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[key]
	if !ok {
		return Code{}, ErrCodeNotFound
	}
	if c.Used {
		return Code{}, ErrCodeAlreadyUsed
	}
	if c.RestrictedEmail != "" && c.RestrictedEmail != normEmail {
		return Code{}, ErrEmailMismatch
	}

	now := time.Now()
	c.Used = true
	c.UsedByToken = token
	c.UsedByEmail = normEmail
	c.UsedAt = &now
	return *c, nil
}

// List returns all codes newest first together with aggregate counts.
func (r *CodeRegistry) List() ([]Code, CodeStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Code, 0, len(r.codes))
	stats := CodeStats{Total: len(r.codes)}
	for _, c := range r.codes {
		out = append(out, *c)
		if c.Used {
			stats.Used++
		} else {
			stats.Unused++
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, stats
}

// Restore replaces the registry contents from a durable snapshot.
func (r *CodeRegistry) Restore(codes []Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codes = make(map[string]*Code, len(codes))
	for i := range codes {
		c := codes[i]
		r.codes[NormalizeCode(c.Code)] = &c
	}
}
