/*
Package ledger provides the wallet ledger and transaction journal core.

PURPOSE:
  This package contains the money-movement primitives shared by every
  component that touches a balance: purchases, wallet funding, referral
  bonuses, commission payouts and reseller upgrades. Whatever the
  business trigger, the same two structures are involved:

  - Account: the current-balance store (plus cumulative totals)
  - Entry:   one journal record of a money-moving intent and its outcome

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: balance in the smallest currency unit, never negative
  - Entry:   pending -> success | failed, immutable once terminal
  - Kind:    what kind of money movement an entry records
  - Role:    pricing tier and commission eligibility of an account

DESIGN PRINCIPLES:
  1. Integer money: balances and amounts are int64 in the smallest
     currency unit. No floats anywhere near a balance.
  2. Exactly-once: every entry carries a unique idempotency key. A
     duplicate key means "already processed", never "retry".
  3. Lockstep: a balance only ever changes together with exactly one
     journal entry reaching a terminal status (see ledger.go).

USAGE:
  entry := ledger.Entry{
      IdempotencyKey: "PAY123",
      AccountID:      "acc-42",
      Kind:           ledger.KindFunding,
      Amount:         5000,
  }
  opened, err := ldg.Open(ctx, entry)

SEE ALSO:
  - errors.go: Error taxonomy used across the engine
  - ledger.go: The Ledger facade and its settle operations
  - store.go:  Persistence interface
*/
package ledger

import (
	"encoding/json"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID identifies one wallet account.
type AccountID string

// EntryID identifies one journal entry.
type EntryID string

// =============================================================================
// ROLES
// =============================================================================

// Role selects the pricing tier of an account and gates commission
// eligibility of referrers.
type Role string

const (
	RoleUser     Role = "user"
	RoleReseller Role = "reseller"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleReseller || r == RoleAdmin
}

// EarnsCommission reports whether a referrer with this role is paid
// data commission. Only resellers and admins earn.
func (r Role) EarnsCommission() bool {
	return r == RoleReseller || r == RoleAdmin
}

// =============================================================================
// ACCOUNT - current balance plus cumulative totals
// =============================================================================

// Account is one user's wallet.
//
// INVARIANTS:
//   - Balance >= 0 at all times. Enforced by the conditional debit in
//     the store and by a CHECK constraint in the schema.
//   - Balance only changes in lockstep with exactly one journal entry
//     reaching a terminal status.
//   - ReferredBy is set at creation and never mutated.
//   - HasFunded is a one-way latch: once true it never resets. It
//     gates the one-time first-funding referral bonus.
type Account struct {
	ID   AccountID `json:"id"`
	Role Role      `json:"role"`

	// ReferredBy is the referral edge: the account that referred this
	// one, empty when the account was not referred.
	ReferredBy AccountID `json:"referred_by,omitempty"`

	// Balance is spendable funds in the smallest currency unit.
	Balance int64 `json:"balance"`

	// Cumulative totals, reporting only. BonusBalance tracks how much
	// of the balance arrived as referral/commission credits; it is not
	// separately spendable.
	TotalFunded  int64 `json:"total_funded"`
	TotalSpent   int64 `json:"total_spent"`
	BonusBalance int64 `json:"bonus_balance"`

	// CommissionEarnings is the lifetime commission counter for
	// reseller/admin referrers.
	CommissionEarnings int64 `json:"commission_earnings"`

	HasFunded bool      `json:"has_funded"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// JOURNAL ENTRY - one money-moving intent and its outcome
// =============================================================================

// Kind is the business meaning of a journal entry.
type Kind string

const (
	KindFunding         Kind = "funding"
	KindPurchase        Kind = "purchase"
	KindCommission      Kind = "commission"
	KindReferralBonus   Kind = "referral_bonus"
	KindResellerUpgrade Kind = "reseller_upgrade"
)

// Status is the lifecycle state of a journal entry.
//
// Transitions: pending -> success, pending -> failed. Terminal states
// are never left. An entry in success has its ledger mutation already
// applied; an entry in failed has no ledger effect.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Entry is one journal record.
//
// Entries are immutable once terminal. Corrections are expressed as
// new entries, never edits.
type Entry struct {
	ID EntryID `json:"id"`

	// IdempotencyKey is the natural key for exactly-once semantics.
	// Unique across the whole journal.
	IdempotencyKey string `json:"idempotency_key"`

	AccountID AccountID `json:"account_id"`
	Kind      Kind      `json:"kind"`

	// Amount charged or credited, smallest currency unit. Fixed when
	// the entry is opened, before any external call.
	Amount int64  `json:"amount"`
	Status Status `json:"status"`

	// ProviderRef is the fulfillment provider's order reference, set
	// on unambiguous success.
	ProviderRef string `json:"provider_ref,omitempty"`

	// ProviderResponse is the raw provider payload, kept verbatim for
	// support and reconciliation lookups.
	ProviderResponse json.RawMessage `json:"provider_response,omitempty"`

	// Ambiguous marks a failed entry whose provider outcome could not
	// be classified (timeout, malformed body). An out-of-band
	// reconciliation job uses this flag to re-query the provider.
	Ambiguous bool `json:"ambiguous,omitempty"`

	// CausedBy links a downstream entry to the entry that triggered it
	// (a commission entry links to its purchase entry).
	CausedBy EntryID `json:"caused_by,omitempty"`

	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// BALANCE FIELDS - aux totals bumped together with a credit
// =============================================================================

// BalanceField names an auxiliary account total that a credit updates
// atomically along with the balance.
type BalanceField string

const (
	FieldTotalFunded        BalanceField = "total_funded"
	FieldBonusBalance       BalanceField = "bonus_balance"
	FieldCommissionEarnings BalanceField = "commission_earnings"
)

// =============================================================================
// LISTING
// =============================================================================

// EntryFilter narrows journal listings.
type EntryFilter struct {
	// Kind filters by entry kind when non-empty.
	Kind Kind
	// SuccessOnly keeps only settled successful entries.
	SuccessOnly bool
	// Offset/Limit paginate. Limit <= 0 means no limit.
	Offset int
	Limit  int
}
