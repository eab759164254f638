/*
errors.go - Centralized error taxonomy for the wallet engine

PURPOSE:
  All money-movement error types in one place. Downstream packages
  (purchase, commission, funding, api) wrap these with context instead
  of inventing their own.

ERROR CATEGORIES:
  1. Ledger errors   - balance, role and account failures
  2. Journal errors  - idempotency and lifecycle violations
  3. Consistency     - states the atomic-unit discipline makes impossible

Provider outcomes (rejections, ambiguity) are deliberately NOT errors:
they travel as purchase.Outcome values because a rejected order is a
business result the caller reports, not a failure of the engine.

USAGE:
  if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
      // already processed: fetch the existing entry, do NOT retry
  }

SEE ALSO:
  - ledger.go: where most of these are produced
  - purchase/orchestrator.go: provider error handling
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when an operation references an
	// account id with no wallet.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds is returned when a debit would take the
	// balance below zero. No side effects beyond a failed journal entry.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateIdempotencyKey is returned when opening an entry
	// whose idempotency key already exists. This is the exactly-once
	// guard, not a failure: callers look up the existing entry and
	// return its result instead of re-executing side effects.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAlreadyFinalized is returned when finalizing an entry that is
	// already terminal. Safe to ignore on retry.
	ErrAlreadyFinalized = errors.New("entry already finalized")

	// ErrEntryNotFound is returned when a journal entry id or key does
	// not exist.
	ErrEntryNotFound = errors.New("journal entry not found")

	// ErrValidation is returned for malformed input. No side effects.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidPricing is returned when the catalog is misconfigured
	// (reseller price above customer price).
	ErrInvalidPricing = errors.New("invalid pricing: reseller price exceeds customer price")

	// ErrAlreadyReseller is returned when a reseller upgrade targets
	// an account whose role is no longer "user". The role predicate in
	// the upgrade settle unit produces it, so a second racing upgrade
	// cannot debit the fee twice.
	ErrAlreadyReseller = errors.New("account already reseller")

	// ErrInternalInconsistency indicates a state the atomic-unit
	// discipline makes impossible (journal success without a ledger
	// mutation). If observed it is a bug, surfaced loudly, never
	// silently retried.
	ErrInternalInconsistency = errors.New("internal ledger inconsistency")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports how short a debit fell.
type InsufficientFundsError struct {
	AccountID AccountID
	Available int64
	Required  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s has %d, needs %d (short %d)",
		e.AccountID, e.Available, e.Required, e.Required-e.Available)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// ValidationError reports which field of a request was bad.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault and
// maps to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPricing) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
