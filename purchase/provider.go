/*
provider.go - Fulfillment provider contract

PURPOSE:
  The fulfillment provider is the external system that actually
  delivers airtime/data/electricity/cable value. The orchestrator only
  sees this narrow contract; HTTP details and response quirks live in
  client.go and mapper.go.

OUTCOME CLASSES:
  Every provider interaction lands in exactly one of three classes:

  - OutcomeSuccess:   provider definitively fulfilled the order
  - OutcomeFailure:   provider definitively rejected it
  - OutcomeAmbiguous: timeout, malformed body, unclassifiable shape -
                      the order MAY have been fulfilled; a journal
                      entry flagged ambiguous is the hand-off to the
                      reconciliation job

  Only OutcomeSuccess ever debits a wallet.
*/
package purchase

import (
	"context"
	"encoding/json"

	"github.com/geovend/wallet-engine/catalog"
)

// Outcome classifies a provider response.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Order carries everything the provider needs to fulfill one
// purchase. Fields are populated from the quote snapshot plus the
// request's delivery target.
type Order struct {
	ServiceType catalog.ServiceType

	// Provider-side identifiers from the quote.
	ProviderNetworkID string
	ProviderPlanID    string

	// Delivery target.
	Phone           string
	MeterNumber     string
	MeterType       string
	DiscoName       string
	SmartCardNumber string
	CableName       string

	// Amount in the smallest currency unit, for amount-denominated
	// services (airtime, electricity).
	Amount int64

	Ported bool
}

// Result is a classified provider response.
type Result struct {
	Outcome Outcome
	// Reference is the provider's order id on success.
	Reference string
	// Message is the provider's human-readable explanation, mostly
	// useful on failure.
	Message string
	// Raw is the verbatim response body (or a synthesized error
	// payload for transport failures), preserved on the journal entry.
	Raw json.RawMessage
}

// Provider submits orders for fulfillment. Implementations impose
// their own timeout and must map every possible response - including
// no response at all - onto an Outcome, never an error: transport
// failures are OutcomeAmbiguous by definition.
type Provider interface {
	SubmitOrder(ctx context.Context, o Order) *Result
}
