/*
orchestrator.go - Purchase state machine

PURPOSE:
  Drives one value purchase end to end:

    validate -> quote -> price by role -> open journal entry ->
    funds check -> submit to provider -> classify -> settle

  The journal entry is opened before the provider is contacted, so a
  crash mid-flight leaves a pending record that explains itself. The
  wallet is only ever debited after the provider confirms success, and
  the debit re-validates the balance inside the settle transaction.

  Ambiguity bias: when the provider's answer cannot be classified
  (timeout, opaque body), the entry is finalized failed with the
  ambiguous flag set and the wallet is left untouched. The operator
  reconciles against the provider's dashboard; the buyer is never
  charged for value we cannot prove was delivered.

  Provider rejections are an expected outcome, not an error: they come
  back in the PurchaseResult with a nil error. Errors are reserved for
  requests that never reached the provider (validation, unknown plan,
  insufficient funds).
*/
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/commission"
	"github.com/geovend/wallet-engine/events"
	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/metrics"
	"github.com/geovend/wallet-engine/notify"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request describes one purchase attempt.
type Request struct {
	AccountID   ledger.AccountID
	ServiceType catalog.ServiceType

	// PlanID selects the catalog item (data plans, cable bouquets, and
	// the tariff rows backing airtime and electricity).
	PlanID string

	// RequestID scopes the idempotency key. Retries of the same logical
	// request must reuse it; a fresh id is a fresh purchase.
	RequestID string

	// Delivery target, service dependent.
	Phone           string
	Ported          bool
	MeterNumber     string
	MeterType       string
	DiscoName       string
	SmartCardNumber string
	CableName       string

	// Amount for amount-denominated services (airtime, electricity),
	// smallest currency unit.
	Amount int64
}

// PurchaseResult is the terminal (or already-in-flight) state of a
// purchase attempt.
type PurchaseResult struct {
	Entry       *ledger.Entry
	Status      ledger.Status
	ProviderRef string
	Message     string
	// Ambiguous marks a failed entry whose provider outcome is unknown.
	Ambiguous bool
	// NewBalance is valid only when Status is success.
	NewBalance int64
	// AlreadyProcessed reports that the idempotency key matched an
	// existing entry and no provider call was made.
	AlreadyProcessed bool
	// Commission is set when a referral payout ran for this purchase.
	Commission *commission.Outcome
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Catalog is the slice of the plan service the orchestrator needs.
type Catalog interface {
	Quote(ctx context.Context, planID string) (*catalog.Quote, error)
}

// Orchestrator coordinates the ledger, the catalog, and the upstream
// provider for value purchases.
type Orchestrator struct {
	ledger     *ledger.Ledger
	catalog    Catalog
	provider   Provider
	commission *commission.Engine
	publisher  events.Publisher
	notifier   notify.Notifier
}

// NewOrchestrator wires a purchase orchestrator. publisher and notifier
// may be the Nop implementations.
func NewOrchestrator(l *ledger.Ledger, c Catalog, p Provider, ce *commission.Engine, pub events.Publisher, n notify.Notifier) *Orchestrator {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if n == nil {
		n = notify.NopNotifier{}
	}
	return &Orchestrator{
		ledger:     l,
		catalog:    c,
		provider:   p,
		commission: ce,
		publisher:  pub,
		notifier:   n,
	}
}

// Purchase runs the full state machine for one request.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*PurchaseResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	account, err := o.ledger.Account(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	quote, err := o.catalog.Quote(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			return nil, &ledger.ValidationError{Field: "plan_id", Message: "unknown or inactive plan"}
		}
		return nil, err
	}
	if quote.ServiceType != req.ServiceType {
		return nil, &ledger.ValidationError{Field: "plan_id", Message: "plan does not belong to the requested service"}
	}

	pricing, err := o.resolvePricing(quote, account.Role, req)
	if err != nil {
		return nil, err
	}

	entry, err := o.openEntry(ctx, req, quote, pricing)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
			return o.replay(ctx, req)
		}
		return nil, err
	}

	// Advisory funds check before spending a provider call. The settle
	// debit re-validates inside the transaction regardless.
	if account.Balance < pricing.Amount {
		o.failEntry(ctx, entry, ledger.Finalize{
			Metadata: map[string]string{"failure_reason": "insufficient funds"},
		})
		metrics.Purchases.WithLabelValues(string(req.ServiceType), "insufficient_funds").Inc()
		return nil, &ledger.InsufficientFundsError{
			AccountID: account.ID,
			Available: account.Balance,
			Required:  pricing.Amount,
		}
	}

	result := o.provider.SubmitOrder(ctx, orderFor(req, quote))

	switch result.Outcome {
	case OutcomeSuccess:
		return o.settleSuccess(ctx, req, quote, entry, result)

	case OutcomeAmbiguous:
		o.failEntry(ctx, entry, ledger.Finalize{
			ProviderResponse: result.Raw,
			Ambiguous:        true,
			Metadata:         map[string]string{"failure_reason": result.Message},
		})
		metrics.Purchases.WithLabelValues(string(req.ServiceType), "ambiguous").Inc()
		metrics.ProviderAmbiguous.Inc()
		return &PurchaseResult{
			Entry:     entry,
			Status:    ledger.StatusFailed,
			Message:   result.Message,
			Ambiguous: true,
		}, nil

	default:
		o.failEntry(ctx, entry, ledger.Finalize{
			ProviderResponse: result.Raw,
			Metadata:         map[string]string{"failure_reason": result.Message},
		})
		metrics.Purchases.WithLabelValues(string(req.ServiceType), "failed").Inc()
		return &PurchaseResult{
			Entry:   entry,
			Status:  ledger.StatusFailed,
			Message: result.Message,
		}, nil
	}
}

// =============================================================================
// STATE MACHINE STEPS
// =============================================================================

func (o *Orchestrator) resolvePricing(quote *catalog.Quote, role ledger.Role, req Request) (*Pricing, error) {
	switch req.ServiceType {
	case catalog.ServiceAirtime, catalog.ServiceElectricity:
		// Amount-denominated: the buyer names the amount and pays it at
		// face value, any margin lives on the provider side.
		return &Pricing{Amount: req.Amount}, nil
	default:
		return PriceFor(quote, role)
	}
}

func (o *Orchestrator) openEntry(ctx context.Context, req Request, quote *catalog.Quote, pricing *Pricing) (*ledger.Entry, error) {
	meta := map[string]string{
		"service_type": string(req.ServiceType),
		"plan_id":      quote.PlanID,
		"network":      quote.Network,
	}
	if pricing.Profit > 0 {
		meta["profit"] = strconv.FormatInt(pricing.Profit, 10)
	}
	if req.Phone != "" {
		meta["phone"] = req.Phone
	}
	if req.MeterNumber != "" {
		meta["meter_number"] = req.MeterNumber
	}
	if req.SmartCardNumber != "" {
		meta["smart_card_number"] = req.SmartCardNumber
	}

	return o.ledger.Open(ctx, ledger.Entry{
		IdempotencyKey: purchaseKey(req),
		AccountID:      req.AccountID,
		Kind:           ledger.KindPurchase,
		Amount:         pricing.Amount,
		Description:    describe(req, quote),
		Metadata:       meta,
	})
}

func (o *Orchestrator) settleSuccess(ctx context.Context, req Request, quote *catalog.Quote, entry *ledger.Entry, result *Result) (*PurchaseResult, error) {
	newBalance, err := o.ledger.SettleDebit(ctx, entry.ID, ledger.Finalize{
		ProviderRef:      result.Reference,
		ProviderResponse: result.Raw,
	})
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			// Concurrent spend drained the wallet between the advisory
			// check and the settle transaction. The provider delivered,
			// so this needs operator follow-up; the buyer is not pushed
			// negative.
			log.Printf("purchase: entry %s delivered but balance drained before settle", entry.ID)
			o.failEntry(ctx, entry, ledger.Finalize{
				ProviderRef:      result.Reference,
				ProviderResponse: result.Raw,
				Ambiguous:        true,
				Metadata:         map[string]string{"failure_reason": "balance drained before settlement"},
			})
			metrics.Purchases.WithLabelValues(string(req.ServiceType), "insufficient_funds").Inc()
			return nil, insufficient
		}
		return nil, err
	}

	settled, err := o.ledger.Entry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	metrics.Purchases.WithLabelValues(string(req.ServiceType), "success").Inc()

	out := &PurchaseResult{
		Entry:       settled,
		Status:      ledger.StatusSuccess,
		ProviderRef: result.Reference,
		Message:     result.Message,
		NewBalance:  newBalance,
	}

	if req.ServiceType == catalog.ServiceData {
		out.Commission = o.payCommission(ctx, settled, quote.SizeGB)
	}

	o.announce(ctx, settled)
	return out, nil
}

// replay resolves a duplicate idempotency key to the entry it already
// produced. A pending entry means a concurrent attempt is still in
// flight; the caller sees its current state and retries later.
func (o *Orchestrator) replay(ctx context.Context, req Request) (*PurchaseResult, error) {
	entry, err := o.ledger.EntryByKey(ctx, purchaseKey(req))
	if err != nil {
		return nil, err
	}
	res := &PurchaseResult{
		Entry:            entry,
		Status:           entry.Status,
		ProviderRef:      entry.ProviderRef,
		Ambiguous:        entry.Ambiguous,
		AlreadyProcessed: true,
	}
	if entry.Status == ledger.StatusPending {
		res.Message = "request already in flight"
	}
	return res, nil
}

// payCommission is best effort: a payout failure never disturbs an
// already-settled purchase.
func (o *Orchestrator) payCommission(ctx context.Context, purchase *ledger.Entry, sizeGB decimal.Decimal) *commission.Outcome {
	if o.commission == nil {
		return nil
	}
	outcome, err := o.commission.Apply(ctx, purchase, sizeGB)
	if err != nil {
		log.Printf("purchase: commission for entry %s: %v", purchase.ID, err)
		return nil
	}
	return outcome
}

func (o *Orchestrator) failEntry(ctx context.Context, entry *ledger.Entry, fin ledger.Finalize) {
	if err := o.ledger.SettleFailed(ctx, entry.ID, fin); err != nil {
		log.Printf("purchase: fail entry %s: %v", entry.ID, err)
	}
	entry.Status = ledger.StatusFailed
	entry.Ambiguous = fin.Ambiguous
	if settled, err := o.ledger.Entry(ctx, entry.ID); err == nil {
		*entry = *settled
	}
	o.announce(ctx, entry)
}

func (o *Orchestrator) announce(ctx context.Context, entry *ledger.Entry) {
	ev := events.EntrySettled{
		EntryID:    entry.ID,
		AccountID:  entry.AccountID,
		Kind:       entry.Kind,
		Amount:     entry.Amount,
		Status:     entry.Status,
		Ambiguous:  entry.Ambiguous,
		OccurredAt: time.Now().UTC(),
	}
	if err := o.publisher.PublishSettled(ctx, ev); err != nil {
		log.Printf("purchase: publish settled %s: %v", entry.ID, err)
	}
	o.notifier.EntrySettled(ctx, *entry)
}

// =============================================================================
// HELPERS
// =============================================================================

var keyPrefixes = map[catalog.ServiceType]string{
	catalog.ServiceData:        "DATA",
	catalog.ServiceAirtime:     "AIRTIME",
	catalog.ServiceElectricity: "METER",
	catalog.ServiceCable:       "CABLE",
}

func purchaseKey(req Request) string {
	return fmt.Sprintf("%s-%s-%s", keyPrefixes[req.ServiceType], req.AccountID, req.RequestID)
}

func orderFor(req Request, quote *catalog.Quote) Order {
	return Order{
		ServiceType:       req.ServiceType,
		ProviderNetworkID: quote.ProviderNetworkID,
		ProviderPlanID:    quote.ProviderPlanID,
		Phone:             req.Phone,
		Ported:            req.Ported,
		MeterNumber:       req.MeterNumber,
		MeterType:         req.MeterType,
		DiscoName:         req.DiscoName,
		SmartCardNumber:   req.SmartCardNumber,
		CableName:         req.CableName,
		Amount:            req.Amount,
	}
}

func describe(req Request, quote *catalog.Quote) string {
	switch req.ServiceType {
	case catalog.ServiceData:
		return fmt.Sprintf("%s %s to %s", quote.Network, quote.Name, req.Phone)
	case catalog.ServiceAirtime:
		return fmt.Sprintf("%s airtime to %s", quote.Network, req.Phone)
	case catalog.ServiceElectricity:
		return fmt.Sprintf("%s %s meter %s", req.DiscoName, req.MeterType, req.MeterNumber)
	case catalog.ServiceCable:
		return fmt.Sprintf("%s %s for card %s", req.CableName, quote.Name, req.SmartCardNumber)
	default:
		return string(req.ServiceType)
	}
}

func validateRequest(req Request) error {
	if req.AccountID == "" {
		return &ledger.ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	if !req.ServiceType.Valid() {
		return &ledger.ValidationError{Field: "service_type", Message: "unknown service"}
	}
	if req.PlanID == "" {
		return &ledger.ValidationError{Field: "plan_id", Message: "must not be empty"}
	}
	switch req.ServiceType {
	case catalog.ServiceData, catalog.ServiceAirtime:
		if req.Phone == "" {
			return &ledger.ValidationError{Field: "phone", Message: "must not be empty"}
		}
	case catalog.ServiceElectricity:
		if req.MeterNumber == "" {
			return &ledger.ValidationError{Field: "meter_number", Message: "must not be empty"}
		}
		if req.DiscoName == "" {
			return &ledger.ValidationError{Field: "disco_name", Message: "must not be empty"}
		}
	case catalog.ServiceCable:
		if req.SmartCardNumber == "" {
			return &ledger.ValidationError{Field: "smart_card_number", Message: "must not be empty"}
		}
	}

	switch req.ServiceType {
	case catalog.ServiceAirtime, catalog.ServiceElectricity:
		if req.Amount <= 0 {
			return &ledger.ValidationError{Field: "amount", Message: "must be positive"}
		}
	}
	return nil
}
