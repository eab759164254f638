/*
store.go - Persistence interface for accounts and the journal

PURPOSE:
  Defines what the ledger needs from storage without binding to a
  database. The production implementation is store/sqlite; tests use
  the same implementation with ":memory:".

ATOMIC UNITS:
  The three Settle* methods are the heart of the engine. Each one is a
  single storage transaction combining a journal status transition with
  its ledger mutation. Either both commit or neither does. There is no
  API to mutate a balance without finalizing an entry, which is what
  keeps "journal says success but balance unchanged" impossible.

LOCKING:
  A settle unit is scoped to one account. Implementations serialize
  writers (the sqlite store holds a mutex across each unit, and the
  conditional debit re-validates sufficiency at the moment of
  mutation), so contention is bounded to two short critical sections
  per purchase: open before the provider call, settle after. No lock is
  ever held across the provider round-trip.

SEE ALSO:
  - ledger.go: Ledger facade built on this interface
  - store/sqlite/sqlite.go: production implementation
*/
package ledger

import (
	"context"
	"encoding/json"
)

// =============================================================================
// SETTLE SPECS
// =============================================================================

// Finalize carries the provider outcome recorded with a terminal
// status transition.
type Finalize struct {
	ProviderRef      string
	ProviderResponse json.RawMessage
	// Ambiguous marks a failure that an out-of-band reconciliation job
	// must re-check against the provider before treating as lost.
	Ambiguous bool
	// Metadata entries merged into the entry's metadata.
	Metadata map[string]string
}

// CreditSpec describes a settle-credit: the balance always increases
// by the entry amount; Fields lists the aux totals bumped by the same
// amount in the same unit.
type CreditSpec struct {
	Finalize
	Fields []BalanceField
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists accounts and journal entries.
type Store interface {
	// CreateAccount inserts a new account. The referral edge and role
	// are fixed here and never change (except via PromoteReseller).
	CreateAccount(ctx context.Context, acc Account) error

	// Account loads one account. ErrAccountNotFound when missing.
	Account(ctx context.Context, id AccountID) (*Account, error)

	// Open inserts a pending journal entry. ErrDuplicateIdempotencyKey
	// when the key already exists.
	Open(ctx context.Context, e Entry) error

	// Entry loads one entry by id. ErrEntryNotFound when missing.
	Entry(ctx context.Context, id EntryID) (*Entry, error)

	// EntryByKey loads one entry by idempotency key.
	EntryByKey(ctx context.Context, key string) (*Entry, error)

	// Entries lists an account's journal, newest first.
	Entries(ctx context.Context, id AccountID, f EntryFilter) ([]Entry, error)

	// CountEntries counts the entries Entries would return, ignoring
	// pagination.
	CountEntries(ctx context.Context, id AccountID, f EntryFilter) (int, error)

	// SettleDebit atomically transitions the entry pending->success,
	// debits the owning account by the entry amount iff balance >=
	// amount, and bumps total_spent. Returns the new balance.
	// InsufficientFundsError rolls the whole unit back.
	SettleDebit(ctx context.Context, id EntryID, fin Finalize) (int64, error)

	// SettleCredit atomically transitions the entry pending->success
	// and credits the owning account's balance plus the listed aux
	// totals by the entry amount. Returns the new balance.
	SettleCredit(ctx context.Context, id EntryID, spec CreditSpec) (int64, error)

	// SettleFailed transitions the entry pending->failed, recording
	// the provider payload and ambiguous flag. Zero ledger effect.
	SettleFailed(ctx context.Context, id EntryID, fin Finalize) error

	// PromoteReseller is the settle unit for a reseller_upgrade entry:
	// pending->success, conditional debit of the fee, and the role
	// flip, all together. Returns the new balance.
	PromoteReseller(ctx context.Context, id EntryID) (int64, error)

	// MarkFunded sets the one-way first-funding latch. Never unsets.
	MarkFunded(ctx context.Context, id AccountID) error
}
