/*
Package commission pays referral commission on settled data purchases.

PURPOSE:
  After a data purchase settles successfully, the buyer's referrer may
  earn commission. The rule is intentionally simple and linear:

    commission = floor(purchased GB) x configured per-GB unit

  Eligibility gates, all of which must hold:
    1. the purchase is a data purchase
    2. floor(purchased GB) >= 1  (fractional GB truncates toward zero,
       so a 0.5 GB plan never pays and a 2.7 GB plan pays exactly 2)
    3. the buyer has a referral edge
    4. the referrer's role is reseller or admin

STRICTLY DOWNSTREAM:
  Commission is best-effort. It runs only after the purchase reached a
  terminal success and can never unwind, fail, or delay that result.
  The caller logs and swallows any error from Apply.

  The payout itself goes through the same journal/ledger primitives as
  everything else: a commission entry linked to the purchase entry,
  credited to the referrer's balance, bonus balance and lifetime
  earnings in one atomic unit.

SEE ALSO:
  - purchase/orchestrator.go: the only caller
  - ledger/ledger.go: Open + SettleCredit
*/
package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/metrics"
)

// Config holds the commission rule parameters.
type Config struct {
	// PerGBUnit is the commission paid per whole gigabyte, in the
	// smallest currency unit.
	PerGBUnit int64
}

// DefaultConfig pays one currency unit per whole GB.
func DefaultConfig() Config {
	return Config{PerGBUnit: 1}
}

// Outcome reports what Apply decided.
type Outcome struct {
	Applied bool
	// Reason explains a skip (not an error): "below 1GB", "no referrer",
	// "referrer not eligible".
	Reason string
	// Entry is the settled commission entry when Applied.
	Entry *ledger.Entry
	// Amount paid, smallest currency unit.
	Amount int64
}

// Engine computes and disburses referral commission.
type Engine struct {
	ledger *ledger.Ledger
	cfg    Config
}

// NewEngine creates a commission engine.
func NewEngine(l *ledger.Ledger, cfg Config) *Engine {
	if cfg.PerGBUnit <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{ledger: l, cfg: cfg}
}

// Apply pays commission for one settled data purchase. Ineligibility
// is a skip, not an error; errors are reserved for payout failures
// (which the caller logs and swallows).
func (e *Engine) Apply(ctx context.Context, purchase *ledger.Entry, sizeGB decimal.Decimal) (*Outcome, error) {
	// Whole gigabytes, fractional part truncated toward zero.
	wholeGB := sizeGB.Truncate(0).IntPart()
	if wholeGB < 1 {
		return &Outcome{Reason: "below 1GB"}, nil
	}

	buyer, err := e.ledger.Account(ctx, purchase.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load buyer: %w", err)
	}
	if buyer.ReferredBy == "" {
		return &Outcome{Reason: "no referrer"}, nil
	}

	referrer, err := e.ledger.Account(ctx, buyer.ReferredBy)
	if err != nil {
		return nil, fmt.Errorf("load referrer %s: %w", buyer.ReferredBy, err)
	}
	if !referrer.Role.EarnsCommission() {
		return &Outcome{Reason: "referrer not eligible"}, nil
	}

	amount := wholeGB * e.cfg.PerGBUnit

	// The purchase entry id keys the commission entry, so a retried
	// commission pass for the same purchase can never pay twice.
	entry, err := e.ledger.Open(ctx, ledger.Entry{
		IdempotencyKey: fmt.Sprintf("COMM-%s", purchase.ID),
		AccountID:      referrer.ID,
		Kind:           ledger.KindCommission,
		Amount:         amount,
		CausedBy:       purchase.ID,
		Description:    fmt.Sprintf("data commission from %s", buyer.ID),
		Metadata: map[string]string{
			"referred_account": string(buyer.ID),
			"size_gb":          sizeGB.String(),
		},
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
			prior, lookupErr := e.ledger.EntryByKey(ctx, fmt.Sprintf("COMM-%s", purchase.ID))
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &Outcome{Applied: true, Entry: prior, Amount: prior.Amount}, nil
		}
		return nil, fmt.Errorf("open commission entry: %w", err)
	}

	if _, err := e.ledger.SettleCredit(ctx, entry.ID, ledger.CreditSpec{
		Finalize: ledger.Finalize{
			ProviderResponse: commissionPayload(purchase, wholeGB),
		},
		Fields: []ledger.BalanceField{
			ledger.FieldBonusBalance,
			ledger.FieldCommissionEarnings,
		},
	}); err != nil {
		return nil, fmt.Errorf("settle commission: %w", err)
	}

	metrics.CommissionPayouts.Inc()

	settled, err := e.ledger.Entry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Applied: true, Entry: settled, Amount: amount}, nil
}

func commissionPayload(purchase *ledger.Entry, wholeGB int64) json.RawMessage {
	payload, _ := json.Marshal(map[string]any{
		"source_entry": purchase.ID,
		"whole_gb":     wholeGB,
	})
	return payload
}
