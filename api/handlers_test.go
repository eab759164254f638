package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovend/wallet-engine/api"
	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/commission"
	"github.com/geovend/wallet-engine/funding"
	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/purchase"
	"github.com/geovend/wallet-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type scriptedProvider struct {
	result *purchase.Result
}

func (p *scriptedProvider) SubmitOrder(_ context.Context, _ purchase.Order) *purchase.Result {
	return p.result
}

type scriptedGateway struct {
	verifications map[string]*funding.Verification
}

func (g *scriptedGateway) Initialize(_ context.Context, _ ledger.AccountID, _ int64) (string, error) {
	return "https://checkout.example/session-1", nil
}

func (g *scriptedGateway) Verify(_ context.Context, reference string) (*funding.Verification, error) {
	if v, ok := g.verifications[reference]; ok {
		return v, nil
	}
	return nil, funding.ErrGatewayUnavailable
}

type testAPI struct {
	server  *httptest.Server
	ledger  *ledger.Ledger
	catalog *catalog.Service
	gateway *scriptedGateway
	planID  string
}

func newTestAPI(t *testing.T, provider *scriptedProvider) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	l := ledger.New(store)
	cat := catalog.NewService(store, catalog.DefaultMarkup())

	_, err = cat.Sync(context.Background(), []catalog.ProviderPlan{{
		ProviderPlanID:    "101",
		ServiceType:       catalog.ServiceData,
		Network:           "MTN",
		ProviderNetworkID: "1",
		Name:              "MTN 1GB SME",
		ProviderPrice:     1000,
	}})
	require.NoError(t, err)
	plans, err := cat.Plans(context.Background(), catalog.ServiceData)
	require.NoError(t, err)

	gw := &scriptedGateway{verifications: map[string]*funding.Verification{}}
	engine := commission.NewEngine(l, commission.DefaultConfig())
	orch := purchase.NewOrchestrator(l, cat, provider, engine, nil, nil)
	rec := funding.NewReconciler(l, gw, nil, funding.DefaultConfig())

	handler := api.NewHandler(l, cat, orch, rec, nil)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, ledger: l, catalog: cat, gateway: gw, planID: plans[0].ID}
}

func (ta *testAPI) do(t *testing.T, method, path, account string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ta.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set("X-Account-ID", account)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ta *testAPI) fundedAccount(t *testing.T, id string, amount int64) {
	t.Helper()
	resp := ta.do(t, http.MethodPost, "/api/accounts", "", api.CreateAccountRequest{ID: id})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	ref := "PAY-" + id
	ta.gateway.verifications[ref] = &funding.Verification{
		Reference: ref,
		Status:    "success",
		Amount:    amount,
		AccountID: ledger.AccountID(id),
		Raw:       json.RawMessage(`{"status":"success"}`),
	}
	resp = ta.do(t, http.MethodPost, "/api/wallet/verify", id, api.VerifyFundingRequest{Reference: ref})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// WALLET FLOW
// =============================================================================

func TestAPI_FundAndReadWallet(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})
	ta.fundedAccount(t, "alice", 5000)

	resp := ta.do(t, http.MethodGet, "/api/wallet", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wallet := decode[api.AccountDTO](t, resp)
	assert.Equal(t, int64(5000), wallet.Balance)
	assert.Equal(t, int64(5000), wallet.TotalFunded)
	assert.True(t, wallet.HasFunded)
}

func TestAPI_WalletRequiresIdentity(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})

	resp := ta.do(t, http.MethodGet, "/api/wallet", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_FundReturnsCheckoutURL(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})
	resp := ta.do(t, http.MethodPost, "/api/accounts", "", api.CreateAccountRequest{ID: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodPost, "/api/wallet/fund", "alice", api.FundRequest{Amount: 5000})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	checkout := decode[api.CheckoutResponse](t, resp)
	assert.Equal(t, "https://checkout.example/session-1", checkout.AuthorizationURL)
}

func TestAPI_VerifyDuplicateReference(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})
	ta.fundedAccount(t, "alice", 5000)

	resp := ta.do(t, http.MethodPost, "/api/wallet/verify", "alice", api.VerifyFundingRequest{Reference: "PAY-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[api.FundingResponse](t, resp)
	assert.True(t, body.AlreadyProcessed)
	assert.Equal(t, int64(5000), body.NewBalance)
}

// =============================================================================
// PURCHASES OVER HTTP
// =============================================================================

func TestAPI_BuyData_Success(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{result: &purchase.Result{
		Outcome:   purchase.OutcomeSuccess,
		Reference: "ORD-1",
		Raw:       json.RawMessage(`{"status":"success","orderid":"ORD-1"}`),
	}})
	ta.fundedAccount(t, "alice", 5000)

	resp := ta.do(t, http.MethodPost, "/api/vtu/buy-data", "alice", api.BuyDataRequest{
		PlanID:    ta.planID,
		Phone:     "08030000000",
		RequestID: "req-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[api.PurchaseResponse](t, resp)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "ORD-1", body.ProviderRef)
	require.NotNil(t, body.NewBalance)
	assert.Equal(t, int64(3900), *body.NewBalance)
}

func TestAPI_BuyData_ProviderFailureIs200Failed(t *testing.T) {
	// Provider rejections are business outcomes, not HTTP errors.
	ta := newTestAPI(t, &scriptedProvider{result: &purchase.Result{
		Outcome: purchase.OutcomeFailure,
		Message: "Invalid phone number",
		Raw:     json.RawMessage(`{"status":"fail","message":"Invalid phone number"}`),
	}})
	ta.fundedAccount(t, "alice", 5000)

	resp := ta.do(t, http.MethodPost, "/api/vtu/buy-data", "alice", api.BuyDataRequest{
		PlanID: ta.planID,
		Phone:  "0000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[api.PurchaseResponse](t, resp)
	assert.Equal(t, "failed", body.Status)
	assert.Equal(t, "Invalid phone number", body.Message)
	assert.Nil(t, body.NewBalance)
}

func TestAPI_BuyData_InsufficientFundsIs400(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})
	ta.fundedAccount(t, "alice", 100)

	resp := ta.do(t, http.MethodPost, "/api/vtu/buy-data", "alice", api.BuyDataRequest{
		PlanID: ta.planID,
		Phone:  "08030000000",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_BuyData_UnknownAccountIs404(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})

	resp := ta.do(t, http.MethodPost, "/api/vtu/buy-data", "ghost", api.BuyDataRequest{
		PlanID: ta.planID,
		Phone:  "08030000000",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestAPI_TransactionsAreScopedToCaller(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{result: &purchase.Result{
		Outcome:   purchase.OutcomeSuccess,
		Reference: "ORD-1",
		Raw:       json.RawMessage(`{"status":"success"}`),
	}})
	ta.fundedAccount(t, "alice", 5000)
	ta.fundedAccount(t, "bob", 5000)

	resp := ta.do(t, http.MethodPost, "/api/vtu/buy-data", "alice", api.BuyDataRequest{
		PlanID: ta.planID,
		Phone:  "08030000000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bought := decode[api.PurchaseResponse](t, resp)

	// Alice sees funding + purchase, newest first.
	resp = ta.do(t, http.MethodGet, "/api/transactions", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[api.TransactionListResponse](t, resp)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "purchase", page.Data[0].Kind)
	assert.Equal(t, 2, page.Meta.Total)

	// Bob cannot read alice's entry.
	resp = ta.do(t, http.MethodGet, "/api/transactions/"+bought.Entry.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/transactions/"+bought.Entry.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_TransactionsArePaginated(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{result: &purchase.Result{
		Outcome: purchase.OutcomeFailure,
		Message: "network unavailable",
		Raw:     json.RawMessage(`{"status":"fail"}`),
	}})
	ta.fundedAccount(t, "alice", 5000)

	// Five more fundings with distinct references: six success entries.
	for _, ref := range []string{"PAY-2", "PAY-3", "PAY-4", "PAY-5", "PAY-6"} {
		ta.gateway.verifications[ref] = &funding.Verification{
			Reference: ref,
			Status:    "success",
			Amount:    1000,
			AccountID: "alice",
			Raw:       json.RawMessage(`{"status":"success"}`),
		}
		resp := ta.do(t, http.MethodPost, "/api/wallet/verify", "alice", api.VerifyFundingRequest{Reference: ref})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// One rejected purchase: a failed entry the default listing hides.
	resp := ta.do(t, http.MethodPost, "/api/vtu/buy-data", "alice", api.BuyDataRequest{
		PlanID: ta.planID,
		Phone:  "08030000000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/transactions?limit=4", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[api.TransactionListResponse](t, resp)
	assert.Len(t, page.Data, 4)
	assert.Equal(t, api.ListMeta{Page: 1, Limit: 4, Total: 6, TotalPages: 2}, page.Meta)
	for _, e := range page.Data {
		assert.Equal(t, "success", e.Status, "default listing is success-only")
	}

	resp = ta.do(t, http.MethodGet, "/api/transactions?page=2&limit=4", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[api.TransactionListResponse](t, resp)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 2, page.Meta.Page)

	// success_only=false widens to the failed purchase as well.
	resp = ta.do(t, http.MethodGet, "/api/transactions?success_only=false", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[api.TransactionListResponse](t, resp)
	assert.Len(t, page.Data, 7)
	assert.Equal(t, 7, page.Meta.Total)

	// Oversized limits are capped.
	resp = ta.do(t, http.MethodGet, "/api/transactions?limit=1000", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[api.TransactionListResponse](t, resp)
	assert.Equal(t, 100, page.Meta.Limit)
}

// =============================================================================
// CATALOG ADMIN
// =============================================================================

func TestAPI_PlanSyncAndPricing(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})

	resp := ta.do(t, http.MethodPost, "/api/admin/plans/sync", "", []catalog.ProviderPlan{{
		ProviderPlanID:    "202",
		ServiceType:       catalog.ServiceData,
		Network:           "AIRTEL",
		ProviderNetworkID: "2",
		Name:              "AIRTEL 2GB",
		ProviderPrice:     2000,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	synced := decode[map[string]int](t, resp)
	assert.Equal(t, 1, synced["synced"])

	resp = ta.do(t, http.MethodGet, "/api/plans?service=data", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plans := decode[[]api.PlanDTO](t, resp)
	require.Len(t, plans, 2)

	var airtel api.PlanDTO
	for _, p := range plans {
		if p.Network == "AIRTEL" {
			airtel = p
		}
	}
	require.NotEmpty(t, airtel.ID)
	assert.Equal(t, int64(2200), airtel.SellingPrice)

	resp = ta.do(t, http.MethodPut, "/api/admin/plans/"+airtel.ID+"/price", "", api.SetPriceRequest{SellingPrice: 2500})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/plans/"+airtel.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := decode[api.PlanDTO](t, resp)
	assert.Equal(t, int64(2500), plan.SellingPrice)
}

func TestAPI_UpgradeToReseller(t *testing.T) {
	ta := newTestAPI(t, &scriptedProvider{})
	ta.fundedAccount(t, "alice", 5000)

	resp := ta.do(t, http.MethodPost, "/api/wallet/upgrade", "alice", api.UpgradeRequest{RequestID: "up-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.FundingResponse](t, resp)
	assert.Equal(t, int64(4000), body.NewBalance)

	// A second upgrade attempt conflicts.
	resp = ta.do(t, http.MethodPost, "/api/wallet/upgrade", "alice", api.UpgradeRequest{RequestID: "up-2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}
