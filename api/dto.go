/*
dto.go - Request and response shapes for the HTTP API

PURPOSE:
  JSON structures exchanged with clients. Domain types never cross the
  HTTP boundary directly; every response is assembled here so the wire
  format can evolve independently of the ledger internals.

CONVENTIONS:
  - Monetary amounts are integers in the smallest currency unit.
  - Timestamps are RFC3339 UTC.
  - Errors are {"error": "...", "details": "..."} with details omitted
    when there is nothing useful to add.

SEE ALSO:
  - handlers.go: where these are populated
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/geovend/wallet-engine/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateAccountRequest registers a wallet account.
type CreateAccountRequest struct {
	ID         string `json:"id"`
	Role       string `json:"role,omitempty"`
	ReferredBy string `json:"referred_by,omitempty"`
}

// BuyDataRequest purchases a data plan.
type BuyDataRequest struct {
	PlanID    string `json:"plan_id"`
	Phone     string `json:"phone"`
	Ported    bool   `json:"ported,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// BuyAirtimeRequest purchases airtime at face value.
type BuyAirtimeRequest struct {
	PlanID    string `json:"plan_id"`
	Phone     string `json:"phone"`
	Amount    int64  `json:"amount"`
	Ported    bool   `json:"ported,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RechargeMeterRequest pays an electricity bill.
type RechargeMeterRequest struct {
	PlanID      string `json:"plan_id"`
	MeterNumber string `json:"meter_number"`
	MeterType   string `json:"meter_type"`
	DiscoName   string `json:"disco_name"`
	Amount      int64  `json:"amount"`
	RequestID   string `json:"request_id,omitempty"`
}

// CableRequest renews a cable subscription.
type CableRequest struct {
	PlanID          string `json:"plan_id"`
	SmartCardNumber string `json:"smart_card_number"`
	CableName       string `json:"cable_name"`
	RequestID       string `json:"request_id,omitempty"`
}

// FundRequest starts a gateway checkout.
type FundRequest struct {
	Amount int64 `json:"amount"`
}

// VerifyFundingRequest reconciles a gateway payment reference.
type VerifyFundingRequest struct {
	Reference string `json:"reference"`
}

// UpgradeRequest asks to become a reseller.
type UpgradeRequest struct {
	RequestID string `json:"request_id,omitempty"`
}

// SetPriceRequest updates a plan's selling price.
type SetPriceRequest struct {
	SellingPrice int64 `json:"selling_price"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// AccountDTO is the wallet view of an account.
type AccountDTO struct {
	ID                 string `json:"id"`
	Role               string `json:"role"`
	ReferredBy         string `json:"referred_by,omitempty"`
	Balance            int64  `json:"balance"`
	TotalFunded        int64  `json:"total_funded"`
	TotalSpent         int64  `json:"total_spent"`
	BonusBalance       int64  `json:"bonus_balance"`
	CommissionEarnings int64  `json:"commission_earnings"`
	HasFunded          bool   `json:"has_funded"`
	CreatedAt          string `json:"created_at"`
}

// EntryDTO is the client view of a journal entry.
type EntryDTO struct {
	ID               string            `json:"id"`
	IdempotencyKey   string            `json:"idempotency_key"`
	AccountID        string            `json:"account_id"`
	Kind             string            `json:"kind"`
	Amount           int64             `json:"amount"`
	Status           string            `json:"status"`
	ProviderRef      string            `json:"provider_ref,omitempty"`
	ProviderResponse json.RawMessage   `json:"provider_response,omitempty"`
	Ambiguous        bool              `json:"ambiguous,omitempty"`
	CausedBy         string            `json:"caused_by,omitempty"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// PurchaseResponse reports the terminal state of a purchase attempt.
type PurchaseResponse struct {
	Status           string   `json:"status"`
	Entry            EntryDTO `json:"entry"`
	ProviderRef      string   `json:"provider_ref,omitempty"`
	Message          string   `json:"message,omitempty"`
	Ambiguous        bool     `json:"ambiguous,omitempty"`
	NewBalance       *int64   `json:"new_balance,omitempty"`
	AlreadyProcessed bool     `json:"already_processed,omitempty"`
}

// FundingResponse reports a reconciled funding credit.
type FundingResponse struct {
	Entry            EntryDTO  `json:"entry"`
	NewBalance       int64     `json:"new_balance"`
	AlreadyProcessed bool      `json:"already_processed,omitempty"`
	Bonus            *EntryDTO `json:"referral_bonus,omitempty"`
}

// ListMeta is pagination metadata for listing endpoints.
type ListMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// TransactionListResponse is one page of a journal listing.
type TransactionListResponse struct {
	Data []EntryDTO `json:"data"`
	Meta ListMeta   `json:"meta"`
}

// CheckoutResponse carries the gateway redirect URL.
type CheckoutResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// PlanDTO is the public catalog view of a plan.
type PlanDTO struct {
	ID           string `json:"id"`
	ServiceType  string `json:"service_type"`
	Network      string `json:"network"`
	Name         string `json:"name"`
	SizeGB       string `json:"size_gb,omitempty"`
	SellingPrice int64  `json:"selling_price"`
	Validity     string `json:"validity,omitempty"`
	Active       bool   `json:"active"`
}

// MeterCheckDTO is the result of a meter lookup.
type MeterCheckDTO struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:                 string(a.ID),
		Role:               string(a.Role),
		ReferredBy:         string(a.ReferredBy),
		Balance:            a.Balance,
		TotalFunded:        a.TotalFunded,
		TotalSpent:         a.TotalSpent,
		BonusBalance:       a.BonusBalance,
		CommissionEarnings: a.CommissionEarnings,
		HasFunded:          a.HasFunded,
		CreatedAt:          a.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e *ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:               string(e.ID),
		IdempotencyKey:   e.IdempotencyKey,
		AccountID:        string(e.AccountID),
		Kind:             string(e.Kind),
		Amount:           e.Amount,
		Status:           string(e.Status),
		ProviderRef:      e.ProviderRef,
		ProviderResponse: e.ProviderResponse,
		Ambiguous:        e.Ambiguous,
		CausedBy:         string(e.CausedBy),
		Description:      e.Description,
		Metadata:         e.Metadata,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.Format(time.RFC3339),
	}
}
