package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrTxConflict       = errors.New("transaction conflict, retry later")
)

// ValidationError rejects a request before anything is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type InsufficientFundsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient berries: have %d, need %d", e.Balance, e.Required)
}

// StorageError hides the underlying failure from callers. The cause stays
// reachable through Unwrap for logging.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage unavailable during " + e.Op
}

func (e *StorageError) Unwrap() error { return e.Err }

type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("on cooldown for another %s", e.Remaining.Round(time.Second))
}

// RetryAfterSeconds rounds the remaining wait up to whole seconds.
func (e *CooldownError) RetryAfterSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

type NotEligibleError struct {
	Reason   string
	Guidance string
}

func (e *NotEligibleError) Error() string {
	return e.Reason
}

// IsDomain reports whether err belongs to the expected error taxonomy
// rather than being an infrastructure failure.
func IsDomain(err error) bool {
	var (
		ve *ValidationError
		ie *InsufficientFundsError
		ce *CooldownError
		ne *NotEligibleError
		se *StorageError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ie), errors.As(err, &ce), errors.As(err, &ne), errors.As(err, &se):
		return true
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrDuplicateRequest), errors.Is(err, ErrTxConflict):
		return true
	}
	return false
}

// AsStorage passes domain errors through and wraps everything else in a
// StorageError for op.
func AsStorage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// PublicMessage renders err for players. Infrastructure detail never leaks.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		ie *InsufficientFundsError
		ce *CooldownError
		ne *NotEligibleError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ie):
		return fmt.Sprintf("You need %d berries but only have %d.", ie.Required, ie.Balance)
	case errors.As(err, &ce):
		return fmt.Sprintf("You can collect manual income again in %d seconds.", ce.RetryAfterSeconds())
	case errors.As(err, &ne):
		if ne.Guidance != "" {
			return ne.Reason + " " + ne.Guidance
		}
		return ne.Reason
	case errors.Is(err, ErrDuplicateRequest):
		return "This request was already processed."
	case errors.Is(err, ErrAccountNotFound):
		return "No account found. Pull or claim income to create one."
	case errors.Is(err, ErrTxConflict):
		return "The server is busy, please try again."
	}
	return "Something went wrong, please try again later."
}
