/*
handlers.go - HTTP API handlers for the wallet engine

PURPOSE:
  Exposes the wallet ledger, the purchase orchestrator, the funding
  reconciler, and the plan catalog via REST. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts / wallet:
    POST   /api/accounts               Register an account
    GET    /api/wallet                 Wallet summary for caller
    POST   /api/wallet/fund            Start a gateway checkout
    POST   /api/wallet/verify          Reconcile a payment reference
    POST   /api/wallet/upgrade         Upgrade caller to reseller

  Purchases:
    POST   /api/vtu/buy-data
    POST   /api/vtu/buy-airtime
    POST   /api/vtu/recharge-meter
    POST   /api/vtu/cable
    GET    /api/vtu/validate-meter

  Journal:
    GET    /api/transactions           Caller's entries, newest first
    GET    /api/transactions/{id}      One entry

  Catalog:
    GET    /api/plans                  Plans, filterable by service
    GET    /api/plans/{id}             One plan
    POST   /api/admin/plans/sync       Upsert the provider plan list
    PUT    /api/admin/plans/{id}/price Set a plan's selling price

IDENTITY:
  The caller is named by the X-Account-ID header. There is no
  authentication layer here; that sits in front of this service.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient funds, bad plan
  - 404: Account/entry/plan not found
  - 409: Duplicate account
  - 502: Payment gateway or provider transport failure
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/funding"
	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/purchase"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Ledger
	Catalog   *catalog.Service
	Purchases *purchase.Orchestrator
	Funding   *funding.Reconciler
	Meters    *purchase.Client
}

// NewHandler wires the handler set. Meters may be nil when no
// fulfillment client is configured (tests).
func NewHandler(l *ledger.Ledger, c *catalog.Service, p *purchase.Orchestrator, f *funding.Reconciler, m *purchase.Client) *Handler {
	return &Handler{Ledger: l, Catalog: c, Purchases: p, Funding: f, Meters: m}
}

// accountID extracts the caller identity. Empty means the request is
// rejected before touching domain logic.
func accountID(r *http.Request) ledger.AccountID {
	return ledger.AccountID(r.Header.Get("X-Account-ID"))
}

// =============================================================================
// ACCOUNT / WALLET HANDLERS
// =============================================================================

// CreateAccount registers a wallet account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	role := ledger.Role(req.Role)
	if req.Role == "" {
		role = ledger.RoleUser
	}

	acct, err := h.Ledger.CreateAccount(r.Context(), ledger.AccountID(req.ID), role, ledger.AccountID(req.ReferredBy))
	if err != nil {
		writeDomainError(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acct))
}

// GetWallet returns the caller's wallet summary.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	acct, err := h.Ledger.Account(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// FundWallet starts a gateway checkout and returns the redirect URL.
func (h *Handler) FundWallet(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	url, err := h.Funding.Initialize(r.Context(), id, req.Amount)
	if err != nil {
		writeDomainError(w, "Failed to start checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResponse{AuthorizationURL: url})
}

// VerifyFunding reconciles a payment reference and credits the wallet
// at most once.
func (h *Handler) VerifyFunding(w http.ResponseWriter, r *http.Request) {
	var req VerifyFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "Missing payment reference", nil)
		return
	}

	res, err := h.Funding.Verify(r.Context(), req.Reference)
	if err != nil {
		writeDomainError(w, "Failed to verify payment", err)
		return
	}

	resp := FundingResponse{
		Entry:            toEntryDTO(res.Entry),
		NewBalance:       res.NewBalance,
		AlreadyProcessed: res.AlreadyProcessed,
	}
	if res.BonusEntry != nil {
		dto := toEntryDTO(res.BonusEntry)
		resp.Bonus = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpgradeToReseller debits the upgrade fee and promotes the caller.
func (h *Handler) UpgradeToReseller(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	var req UpgradeRequest
	if r.Body != nil {
		// Body is optional; a bare POST upgrades with a fresh request id.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	res, err := h.Funding.UpgradeToReseller(r.Context(), id, req.RequestID)
	if err != nil {
		writeDomainError(w, "Failed to upgrade account", err)
		return
	}
	writeJSON(w, http.StatusOK, FundingResponse{
		Entry:            toEntryDTO(res.Entry),
		NewBalance:       res.NewBalance,
		AlreadyProcessed: res.AlreadyProcessed,
	})
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// BuyData purchases a data plan for a phone number.
func (h *Handler) BuyData(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	var req BuyDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.runPurchase(w, r, purchase.Request{
		AccountID:   id,
		ServiceType: catalog.ServiceData,
		PlanID:      req.PlanID,
		Phone:       req.Phone,
		Ported:      req.Ported,
		RequestID:   req.RequestID,
	})
}

// BuyAirtime purchases airtime at face value.
func (h *Handler) BuyAirtime(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	var req BuyAirtimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.runPurchase(w, r, purchase.Request{
		AccountID:   id,
		ServiceType: catalog.ServiceAirtime,
		PlanID:      req.PlanID,
		Phone:       req.Phone,
		Amount:      req.Amount,
		Ported:      req.Ported,
		RequestID:   req.RequestID,
	})
}

// RechargeMeter pays an electricity bill.
func (h *Handler) RechargeMeter(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	var req RechargeMeterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.runPurchase(w, r, purchase.Request{
		AccountID:   id,
		ServiceType: catalog.ServiceElectricity,
		PlanID:      req.PlanID,
		MeterNumber: req.MeterNumber,
		MeterType:   req.MeterType,
		DiscoName:   req.DiscoName,
		Amount:      req.Amount,
		RequestID:   req.RequestID,
	})
}

// Cable renews a cable subscription.
func (h *Handler) Cable(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	var req CableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.runPurchase(w, r, purchase.Request{
		AccountID:       id,
		ServiceType:     catalog.ServiceCable,
		PlanID:          req.PlanID,
		SmartCardNumber: req.SmartCardNumber,
		CableName:       req.CableName,
		RequestID:       req.RequestID,
	})
}

// ValidateMeter checks a meter number before an electricity purchase.
// GET /api/vtu/validate-meter?meter_number=...&disco_name=...&meter_type=...
func (h *Handler) ValidateMeter(w http.ResponseWriter, r *http.Request) {
	if h.Meters == nil {
		writeError(w, http.StatusServiceUnavailable, "Meter validation not configured", nil)
		return
	}

	q := r.URL.Query()
	meter := q.Get("meter_number")
	disco := q.Get("disco_name")
	mtype := q.Get("meter_type")
	if meter == "" || disco == "" {
		writeError(w, http.StatusBadRequest, "meter_number and disco_name are required", nil)
		return
	}

	check, err := h.Meters.ValidateMeter(r.Context(), meter, disco, mtype)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Meter lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, MeterCheckDTO{Valid: check.Valid, Name: check.Name})
}

// runPurchase drives the orchestrator and maps its outcome onto HTTP.
// Provider rejections are 200s with status "failed"; only requests
// that never reached the provider become error statuses.
func (h *Handler) runPurchase(w http.ResponseWriter, r *http.Request, req purchase.Request) {
	res, err := h.Purchases.Purchase(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Purchase rejected", err)
		return
	}

	resp := PurchaseResponse{
		Status:           string(res.Status),
		Entry:            toEntryDTO(res.Entry),
		ProviderRef:      res.ProviderRef,
		Message:          res.Message,
		Ambiguous:        res.Ambiguous,
		AlreadyProcessed: res.AlreadyProcessed,
	}
	if res.Status == ledger.StatusSuccess && !res.AlreadyProcessed {
		bal := res.NewBalance
		resp.NewBalance = &bal
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// JOURNAL HANDLERS
// =============================================================================

// Journal page bounds. The cap keeps a single request from pulling
// the whole journal.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ListTransactions returns one page of the caller's journal, newest
// first, with pagination meta. Settled successful entries only unless
// ?success_only=false widens it. Supports ?kind=, ?page=, ?limit=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	q := r.URL.Query()
	page := 1
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	limit := defaultPageLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := ledger.EntryFilter{
		Kind:        ledger.Kind(q.Get("kind")),
		SuccessOnly: q.Get("success_only") != "false",
		Offset:      (page - 1) * limit,
		Limit:       limit,
	}

	entries, err := h.Ledger.Entries(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, "Failed to list transactions", err)
		return
	}
	total, err := h.Ledger.CountEntries(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, "Failed to count transactions", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, TransactionListResponse{
		Data: dtos,
		Meta: ListMeta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

// GetTransaction returns one journal entry. Callers only see their
// own entries.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-ID header", nil)
		return
	}

	entry, err := h.Ledger.Entry(r.Context(), ledger.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to load transaction", err)
		return
	}
	if entry.AccountID != id {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListPlans returns active plans, filterable by ?service=.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	st := catalog.ServiceType(r.URL.Query().Get("service"))
	if st != "" && !st.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown service type", nil)
		return
	}

	plans, err := h.Catalog.Plans(r.Context(), st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}

	dtos := make([]PlanDTO, len(plans))
	for i := range plans {
		dtos[i] = toPlanDTO(&plans[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPlan returns one plan.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Catalog.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "Plan not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load plan", err)
		return
	}

	dto := PlanDTO{
		ID:           quote.PlanID,
		ServiceType:  string(quote.ServiceType),
		Network:      quote.Network,
		Name:         quote.Name,
		SellingPrice: quote.CustomerPrice,
		Validity:     quote.Validity,
		Active:       true,
	}
	if !quote.SizeGB.IsZero() {
		dto.SizeGB = quote.SizeGB.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// SyncPlans upserts the provider plan list. Admin pricing on existing
// plans survives the sync.
// POST /api/admin/plans/sync
func (h *Handler) SyncPlans(w http.ResponseWriter, r *http.Request) {
	var plans []catalog.ProviderPlan
	if err := json.NewDecoder(r.Body).Decode(&plans); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	n, err := h.Catalog.Sync(r.Context(), plans)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sync plans", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

// SetPlanPrice updates a plan's selling price; the reseller price is
// rederived from it.
// PUT /api/admin/plans/{id}/price
func (h *Handler) SetPlanPrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SellingPrice <= 0 {
		writeError(w, http.StatusBadRequest, "Selling price must be positive", nil)
		return
	}

	if err := h.Catalog.SetSellingPrice(r.Context(), chi.URLParam(r, "id"), req.SellingPrice); err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "Plan not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to set price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func toPlanDTO(p *catalog.Plan) PlanDTO {
	dto := PlanDTO{
		ID:           p.ID,
		ServiceType:  string(p.ServiceType),
		Network:      p.Network,
		Name:         p.Name,
		SellingPrice: p.SellingPrice,
		Validity:     p.Validity,
		Active:       p.Active,
	}
	if !p.SizeGB.IsZero() {
		dto.SizeGB = p.SizeGB.String()
	}
	return dto
}

// writeDomainError maps ledger/funding/purchase errors onto HTTP
// statuses with the uniform error body.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, funding.ErrAlreadyReseller):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, funding.ErrPaymentNotSuccessful):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, funding.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
