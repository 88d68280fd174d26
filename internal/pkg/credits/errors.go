package credits

import (
	"errors"
	"fmt"
)

// Redemption and issuance failures are terminal. Callers report them
// verbatim and must not retry.
var (
	ErrCodeNotFound    = errors.New("credit code not found")
	ErrCodeAlreadyUsed = errors.New("credit code already used")
	ErrEmailMismatch   = errors.New("credit code is restricted to a different email address")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrDuplicateCode   = errors.New("credit code already exists")
)

// InsufficientCreditsError reports a rejected deduction together with the
// unchanged balance so the caller can redirect to a top-up flow.
type InsufficientCreditsError struct {
	Balance int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits (balance %d)", e.Balance)
}

// ValidationError marks malformed input (missing token, non-positive
// amounts). Never retried, always reported to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
