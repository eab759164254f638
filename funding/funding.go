/*
Package funding credits wallets from verified external payments.

PURPOSE:
  The Funding Reconciler is one of the two entry points into the
  ledger/journal pair (the other is the purchase orchestrator). Given
  a payment reference, it:

    1. asks the gateway for the authoritative status
    2. opens a funding entry keyed by the payment reference itself -
       the natural idempotency key, so a duplicate webhook or poll
       hits ErrDuplicateIdempotencyKey and returns the prior result
       instead of double-crediting
    3. credits balance + totalFunded in one atomic unit
    4. on the account's FIRST ever successful funding, pays a one-time
       fixed referral bonus to the referrer, then flips the hasFunded
       latch - a one-way gate that prevents repeat bonus payouts from
       retried funding events

  The bonus itself is journaled and credited atomically, but it is
  downstream best-effort: a bonus failure is logged, the funding
  credit stands, and the latch still flips.

RESELLER UPGRADE:
  Upgrading to reseller is a paid wallet operation: a fixed fee is
  debited and the role flipped inside one settle unit, journaled as a
  reseller_upgrade entry.

SEE ALSO:
  - gateway.go: the payment gateway contract
  - ledger/ledger.go: Open + SettleCredit + PromoteReseller
*/
package funding

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/geovend/wallet-engine/events"
	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/metrics"
)

// ErrPaymentNotSuccessful is returned when the gateway reports any
// status other than success. Nothing is journaled.
var ErrPaymentNotSuccessful = errors.New("payment not successful")

// ErrAlreadyReseller is returned when upgrading an account that is
// already a reseller or admin. Alias of the ledger sentinel so both
// the advisory gate here and the settle unit produce the same error.
var ErrAlreadyReseller = ledger.ErrAlreadyReseller

// Config holds the reconciler's parameters. Explicit configuration,
// never package-level mutable state.
type Config struct {
	// ReferralBonus is the one-time first-funding bonus, smallest
	// currency unit.
	ReferralBonus int64
	// ResellerUpgradeFee is the price of the reseller upgrade.
	ResellerUpgradeFee int64
}

// DefaultConfig mirrors the platform defaults.
func DefaultConfig() Config {
	return Config{
		ReferralBonus:      100,
		ResellerUpgradeFee: 1000,
	}
}

// Result is the outcome of a funding verification or upgrade.
type Result struct {
	// Entry is the funding (or upgrade) journal entry, terminal.
	Entry *ledger.Entry
	// NewBalance after the credit/debit.
	NewBalance int64
	// AlreadyProcessed marks a duplicate reference: the ledger was
	// credited by an earlier call and Entry is that earlier entry.
	AlreadyProcessed bool
	// BonusEntry is the referral bonus entry when one was paid.
	BonusEntry *ledger.Entry
}

// Reconciler verifies payments and credits wallets exactly once.
type Reconciler struct {
	ledger    *ledger.Ledger
	gateway   Gateway
	publisher events.Publisher
	cfg       Config
}

// NewReconciler creates a funding reconciler.
func NewReconciler(l *ledger.Ledger, gw Gateway, pub events.Publisher, cfg Config) *Reconciler {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if cfg.ReferralBonus <= 0 {
		cfg.ReferralBonus = DefaultConfig().ReferralBonus
	}
	if cfg.ResellerUpgradeFee <= 0 {
		cfg.ResellerUpgradeFee = DefaultConfig().ResellerUpgradeFee
	}
	return &Reconciler{ledger: l, gateway: gw, publisher: pub, cfg: cfg}
}

// Initialize starts a hosted checkout for the given amount.
func (r *Reconciler) Initialize(ctx context.Context, accountID ledger.AccountID, amount int64) (string, error) {
	if amount <= 0 {
		return "", &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if _, err := r.ledger.Account(ctx, accountID); err != nil {
		return "", err
	}
	return r.gateway.Initialize(ctx, accountID, amount)
}

// Verify reconciles one payment reference against the gateway and
// credits the wallet exactly once.
func (r *Reconciler) Verify(ctx context.Context, reference string) (*Result, error) {
	if reference == "" {
		return nil, &ledger.ValidationError{Field: "reference", Message: "must not be empty"}
	}

	v, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !v.Succeeded() {
		return nil, fmt.Errorf("%w: gateway status %q for %s", ErrPaymentNotSuccessful, v.Status, reference)
	}

	// The payment reference is the idempotency key. A duplicate
	// webhook lands here and returns the original entry untouched.
	entry, err := r.ledger.Open(ctx, ledger.Entry{
		IdempotencyKey: reference,
		AccountID:      v.AccountID,
		Kind:           ledger.KindFunding,
		Amount:         v.Amount,
		Description:    "wallet funding",
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
			prior, lookupErr := r.ledger.EntryByKey(ctx, reference)
			if lookupErr != nil {
				return nil, lookupErr
			}
			acc, lookupErr := r.ledger.Account(ctx, prior.AccountID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &Result{Entry: prior, NewBalance: acc.Balance, AlreadyProcessed: true}, nil
		}
		return nil, err
	}

	newBalance, err := r.ledger.SettleCredit(ctx, entry.ID, ledger.CreditSpec{
		Finalize: ledger.Finalize{
			ProviderRef:      reference,
			ProviderResponse: v.Raw,
		},
		Fields: []ledger.BalanceField{ledger.FieldTotalFunded},
	})
	if err != nil {
		return nil, err
	}
	metrics.FundingCredits.Inc()

	settled, err := r.ledger.Entry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	result := &Result{Entry: settled, NewBalance: newBalance}

	// First-funding referral bonus, gated by the one-way latch.
	result.BonusEntry = r.maybePayFirstFundingBonus(ctx, v.AccountID)

	r.publish(ctx, settled)
	return result, nil
}

// maybePayFirstFundingBonus pays the one-time bonus and flips the
// latch. Best-effort: failures are logged, never propagated, and the
// latch flips regardless so a later retry cannot double-pay.
func (r *Reconciler) maybePayFirstFundingBonus(ctx context.Context, accountID ledger.AccountID) *ledger.Entry {
	acc, err := r.ledger.Account(ctx, accountID)
	if err != nil {
		log.Printf("funding: bonus check: load account %s: %v", accountID, err)
		return nil
	}
	if acc.HasFunded {
		return nil
	}

	defer func() {
		if err := r.ledger.MarkFunded(ctx, accountID); err != nil {
			log.Printf("funding: mark funded %s: %v", accountID, err)
		}
	}()

	if acc.ReferredBy == "" {
		return nil
	}

	// Keyed by the funded account: one bonus per referred account,
	// ever, even across concurrent verifications.
	entry, err := r.ledger.Open(ctx, ledger.Entry{
		IdempotencyKey: fmt.Sprintf("REF-BONUS-%s", accountID),
		AccountID:      acc.ReferredBy,
		Kind:           ledger.KindReferralBonus,
		Amount:         r.cfg.ReferralBonus,
		Description:    fmt.Sprintf("referral bonus for first funding of %s", accountID),
		Metadata:       map[string]string{"referred_account": string(accountID)},
	})
	if err != nil {
		if !errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
			log.Printf("funding: open referral bonus for %s: %v", accountID, err)
		}
		return nil
	}

	if _, err := r.ledger.SettleCredit(ctx, entry.ID, ledger.CreditSpec{
		Fields: []ledger.BalanceField{ledger.FieldBonusBalance},
	}); err != nil {
		log.Printf("funding: settle referral bonus %s: %v", entry.ID, err)
		return nil
	}
	metrics.ReferralBonuses.Inc()

	settled, err := r.ledger.Entry(ctx, entry.ID)
	if err != nil {
		return nil
	}
	r.publish(ctx, settled)
	return settled
}

// UpgradeToReseller debits the upgrade fee and flips the role in one
// settle unit. requestID scopes the idempotency key to one logical
// attempt; retries of the same attempt return the prior entry.
func (r *Reconciler) UpgradeToReseller(ctx context.Context, accountID ledger.AccountID, requestID string) (*Result, error) {
	acc, err := r.ledger.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Role != ledger.RoleUser {
		return nil, ErrAlreadyReseller
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	key := fmt.Sprintf("UPGRADE-%s-%s", accountID, requestID)
	entry, err := r.ledger.Open(ctx, ledger.Entry{
		IdempotencyKey: key,
		AccountID:      accountID,
		Kind:           ledger.KindResellerUpgrade,
		Amount:         r.cfg.ResellerUpgradeFee,
		Description:    "upgrade to reseller",
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
			prior, lookupErr := r.ledger.EntryByKey(ctx, key)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &Result{Entry: prior, NewBalance: acc.Balance, AlreadyProcessed: true}, nil
		}
		return nil, err
	}

	newBalance, err := r.ledger.PromoteReseller(ctx, entry.ID)
	if err != nil {
		// A concurrent upgrade can flip the role between the advisory
		// gate above and this settle; the entry fails, the fee is not
		// debited again.
		var reason string
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			reason = "insufficient funds"
		case errors.Is(err, ledger.ErrAlreadyReseller):
			reason = "already reseller"
		}
		if reason != "" {
			if failErr := r.ledger.SettleFailed(ctx, entry.ID, ledger.Finalize{
				Metadata: map[string]string{"reason": reason},
			}); failErr != nil {
				log.Printf("funding: fail upgrade entry %s: %v", entry.ID, failErr)
			}
		}
		return nil, err
	}

	settled, lookupErr := r.ledger.Entry(ctx, entry.ID)
	if lookupErr != nil {
		return nil, lookupErr
	}
	r.publish(ctx, settled)
	return &Result{Entry: settled, NewBalance: newBalance}, nil
}

// publish announces a settled entry, fire-and-forget.
func (r *Reconciler) publish(ctx context.Context, e *ledger.Entry) {
	ev := events.EntrySettled{
		EntryID:    e.ID,
		AccountID:  e.AccountID,
		Kind:       e.Kind,
		Amount:     e.Amount,
		Status:     e.Status,
		Ambiguous:  e.Ambiguous,
		OccurredAt: e.UpdatedAt,
	}
	if err := r.publisher.PublishSettled(ctx, ev); err != nil {
		log.Printf("funding: publish settled %s: %v", e.ID, err)
	}
}
