/*
ledger.go - The Ledger facade: open-then-settle money movement

PURPOSE:
  The Ledger is the only way any component moves money. The discipline
  is always the same two steps:

    1. Open:   journal a pending entry (fast, local). This fixes the
               accounting intent BEFORE any external call, so a crash
               mid-flight leaves a reconcilable pending entry instead
               of a partial debit.
    2. Settle: finalize the entry and apply the ledger mutation as one
               atomic unit (fast, local).

CRITICAL INVARIANTS:
  1. EXACTLY-ONCE: Open fails with ErrDuplicateIdempotencyKey when the
     key exists. Callers treat that as "already processed" and fetch
     the prior entry.
  2. LOCKSTEP: a balance never changes except inside a Settle* call,
     and a Settle* call never applies a mutation without the status
     transition committing with it.
  3. TERMINAL: settling a terminal entry fails with ErrAlreadyFinalized
     and has no effect. Safe to ignore on retry.
  4. FLOOR AT ZERO: SettleDebit re-validates balance >= amount at the
     moment of mutation. The earlier funds pre-check is advisory only;
     this conditional decrement is what makes concurrent purchases on
     one account safe.

SEE ALSO:
  - store.go: the atomic units themselves
  - purchase/orchestrator.go: the main caller
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger coordinates journal entries and balance mutations on a Store.
type Ledger struct {
	store Store
}

// New creates a Ledger on the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Store exposes the underlying store for read paths (api listings).
func (l *Ledger) Store() Store {
	return l.store
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccount registers a wallet with a zero balance. Role defaults
// to user; the referral edge is immutable after this call.
func (l *Ledger) CreateAccount(ctx context.Context, id AccountID, role Role, referredBy AccountID) (*Account, error) {
	if id == "" {
		return nil, &ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Message: "unknown role"}
	}
	acc := Account{
		ID:         id,
		Role:       role,
		ReferredBy: referredBy,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.store.CreateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// Account loads one account.
func (l *Ledger) Account(ctx context.Context, id AccountID) (*Account, error) {
	return l.store.Account(ctx, id)
}

// =============================================================================
// JOURNAL
// =============================================================================

// Open journals a pending entry. The entry id and timestamps are
// assigned here; the idempotency key must be supplied by the caller
// (it is the cross-retry coordination mechanism and must be derived
// from the business operation, not generated fresh per attempt).
func (l *Ledger) Open(ctx context.Context, e Entry) (*Entry, error) {
	if e.IdempotencyKey == "" {
		return nil, &ValidationError{Field: "idempotency_key", Message: "must not be empty"}
	}
	if e.AccountID == "" {
		return nil, &ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	if e.Amount < 0 {
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if e.Kind == "" {
		return nil, &ValidationError{Field: "kind", Message: "must not be empty"}
	}

	// The account must exist before we journal against it.
	if _, err := l.store.Account(ctx, e.AccountID); err != nil {
		return nil, err
	}

	e.ID = EntryID(uuid.NewString())
	e.Status = StatusPending
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := l.store.Open(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Entry loads one journal entry by id.
func (l *Ledger) Entry(ctx context.Context, id EntryID) (*Entry, error) {
	return l.store.Entry(ctx, id)
}

// EntryByKey loads one journal entry by idempotency key. This is the
// lookup callers perform after ErrDuplicateIdempotencyKey.
func (l *Ledger) EntryByKey(ctx context.Context, key string) (*Entry, error) {
	return l.store.EntryByKey(ctx, key)
}

// Entries lists an account's journal, newest first.
func (l *Ledger) Entries(ctx context.Context, id AccountID, f EntryFilter) ([]Entry, error) {
	return l.store.Entries(ctx, id, f)
}

// CountEntries counts the entries Entries would match, ignoring
// pagination. Listing endpoints use it for page totals.
func (l *Ledger) CountEntries(ctx context.Context, id AccountID, f EntryFilter) (int, error) {
	return l.store.CountEntries(ctx, id, f)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettleDebit finalizes the entry as success and debits its amount,
// iff the balance covers it, as one atomic unit. Returns the new
// balance.
func (l *Ledger) SettleDebit(ctx context.Context, id EntryID, fin Finalize) (int64, error) {
	return l.store.SettleDebit(ctx, id, fin)
}

// SettleCredit finalizes the entry as success and credits its amount
// to the balance plus the listed aux totals, as one atomic unit.
// Credits have no upper bound. Returns the new balance.
func (l *Ledger) SettleCredit(ctx context.Context, id EntryID, spec CreditSpec) (int64, error) {
	return l.store.SettleCredit(ctx, id, spec)
}

// SettleFailed finalizes the entry as failed with zero ledger effect.
func (l *Ledger) SettleFailed(ctx context.Context, id EntryID, fin Finalize) error {
	return l.store.SettleFailed(ctx, id, fin)
}

// PromoteReseller settles a reseller_upgrade entry: fee debit and role
// flip in one unit.
func (l *Ledger) PromoteReseller(ctx context.Context, id EntryID) (int64, error) {
	return l.store.PromoteReseller(ctx, id)
}

// MarkFunded flips the one-way first-funding latch.
func (l *Ledger) MarkFunded(ctx context.Context, id AccountID) error {
	return l.store.MarkFunded(ctx, id)
}
