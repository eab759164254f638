package funding_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovend/wallet-engine/funding"
	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// scriptedGateway resolves references from a fixed table and counts
// verify calls.
type scriptedGateway struct {
	verifications map[string]*funding.Verification
	verifyCalls   int
}

func (g *scriptedGateway) Initialize(_ context.Context, _ ledger.AccountID, _ int64) (string, error) {
	return "https://checkout.example/session-1", nil
}

func (g *scriptedGateway) Verify(_ context.Context, reference string) (*funding.Verification, error) {
	g.verifyCalls++
	if v, ok := g.verifications[reference]; ok {
		return v, nil
	}
	return nil, funding.ErrGatewayUnavailable
}

func successfulPayment(reference, accountID string, amount int64) *funding.Verification {
	return &funding.Verification{
		Reference: reference,
		Status:    "success",
		Amount:    amount,
		AccountID: ledger.AccountID(accountID),
		Raw:       json.RawMessage(`{"status":"success"}`),
	}
}

func newReconciler(t *testing.T, gw funding.Gateway) (*ledger.Ledger, *funding.Reconciler) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	l := ledger.New(store)
	return l, funding.NewReconciler(l, gw, nil, funding.DefaultConfig())
}

func account(t *testing.T, l *ledger.Ledger, id string, role ledger.Role, referredBy string) {
	t.Helper()
	_, err := l.CreateAccount(context.Background(), ledger.AccountID(id), role, ledger.AccountID(referredBy))
	require.NoError(t, err)
}

// =============================================================================
// VERIFY / CREDIT
// =============================================================================

func TestVerify_CreditsWallet(t *testing.T) {
	// GIVEN: A successful gateway payment of 5000 for alice
	// WHEN: The reference is verified
	// THEN: Balance and total_funded rise by 5000, entry terminal

	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")

	res, err := r.Verify(context.Background(), "PAY123")
	require.NoError(t, err)

	assert.Equal(t, int64(5000), res.NewBalance)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, ledger.StatusSuccess, res.Entry.Status)
	assert.Equal(t, "PAY123", res.Entry.ProviderRef)

	acct, _ := l.Account(context.Background(), "alice")
	assert.Equal(t, int64(5000), acct.Balance)
	assert.Equal(t, int64(5000), acct.TotalFunded)
	assert.True(t, acct.HasFunded)
}

func TestVerify_DuplicateReference_CreditsOnce(t *testing.T) {
	// GIVEN: PAY123 already reconciled
	// WHEN: The same reference is verified again (retry, webhook replay)
	// THEN: The original entry returns, the balance does not move

	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")
	ctx := context.Background()

	first, err := r.Verify(ctx, "PAY123")
	require.NoError(t, err)

	second, err := r.Verify(ctx, "PAY123")
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, int64(5000), second.NewBalance)

	acct, _ := l.Account(ctx, "alice")
	assert.Equal(t, int64(5000), acct.Balance, "double credit must be impossible")
}

func TestVerify_FailedPayment_NothingJournaled(t *testing.T) {
	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY-BAD": {Reference: "PAY-BAD", Status: "abandoned", AccountID: "alice"},
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")

	_, err := r.Verify(context.Background(), "PAY-BAD")
	assert.ErrorIs(t, err, funding.ErrPaymentNotSuccessful)

	entries, _ := l.Entries(context.Background(), "alice", ledger.EntryFilter{})
	assert.Empty(t, entries)
}

func TestVerify_GatewayDown(t *testing.T) {
	l, r := newReconciler(t, &scriptedGateway{})
	account(t, l, "alice", ledger.RoleUser, "")

	_, err := r.Verify(context.Background(), "PAY123")
	assert.ErrorIs(t, err, funding.ErrGatewayUnavailable)
}

// =============================================================================
// FIRST-FUNDING REFERRAL BONUS
// =============================================================================

func TestVerify_FirstFunding_PaysReferralBonus(t *testing.T) {
	// GIVEN: Reseller B referred alice; alice funds for the first time
	// THEN: B receives the one-time bonus as a bonus_balance credit

	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "ref-b", ledger.RoleReseller, "")
	account(t, l, "alice", ledger.RoleUser, "ref-b")

	res, err := r.Verify(context.Background(), "PAY123")
	require.NoError(t, err)

	require.NotNil(t, res.BonusEntry)
	assert.Equal(t, ledger.KindReferralBonus, res.BonusEntry.Kind)
	assert.Equal(t, int64(100), res.BonusEntry.Amount)

	ref, _ := l.Account(context.Background(), "ref-b")
	assert.Equal(t, int64(100), ref.Balance)
	assert.Equal(t, int64(100), ref.BonusBalance)
	assert.Equal(t, int64(0), ref.TotalFunded, "bonus is not funding")
}

func TestVerify_SecondFunding_NoSecondBonus(t *testing.T) {
	// The latch flips on first funding; later top-ups pay nothing.
	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY-1": successfulPayment("PAY-1", "alice", 5000),
		"PAY-2": successfulPayment("PAY-2", "alice", 3000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "ref-b", ledger.RoleReseller, "")
	account(t, l, "alice", ledger.RoleUser, "ref-b")
	ctx := context.Background()

	first, err := r.Verify(ctx, "PAY-1")
	require.NoError(t, err)
	require.NotNil(t, first.BonusEntry)

	second, err := r.Verify(ctx, "PAY-2")
	require.NoError(t, err)
	assert.Nil(t, second.BonusEntry)

	ref, _ := l.Account(ctx, "ref-b")
	assert.Equal(t, int64(100), ref.Balance, "exactly one bonus")

	alice, _ := l.Account(ctx, "alice")
	assert.Equal(t, int64(8000), alice.Balance)
}

func TestVerify_NoReferrer_LatchStillFlips(t *testing.T) {
	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")

	res, err := r.Verify(context.Background(), "PAY123")
	require.NoError(t, err)
	assert.Nil(t, res.BonusEntry)

	acct, _ := l.Account(context.Background(), "alice")
	assert.True(t, acct.HasFunded)
}

// =============================================================================
// RESELLER UPGRADE
// =============================================================================

func TestUpgrade_DebitsFeeAndFlipsRole(t *testing.T) {
	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")
	ctx := context.Background()

	_, err := r.Verify(ctx, "PAY123")
	require.NoError(t, err)

	res, err := r.UpgradeToReseller(ctx, "alice", "up-1")
	require.NoError(t, err)

	assert.Equal(t, int64(4000), res.NewBalance)
	assert.Equal(t, ledger.KindResellerUpgrade, res.Entry.Kind)

	acct, _ := l.Account(ctx, "alice")
	assert.Equal(t, ledger.RoleReseller, acct.Role)
}

func TestUpgrade_InsufficientFunds_FailedEntryRetryable(t *testing.T) {
	// GIVEN: A broke user whose upgrade attempt fails on funds
	// WHEN: They fund and retry with a NEW request id
	// THEN: The retry succeeds; the failed attempt stays on the books

	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")
	ctx := context.Background()

	_, err := r.UpgradeToReseller(ctx, "alice", "up-1")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	acct, _ := l.Account(ctx, "alice")
	assert.Equal(t, ledger.RoleUser, acct.Role)

	_, err = r.Verify(ctx, "PAY123")
	require.NoError(t, err)

	res, err := r.UpgradeToReseller(ctx, "alice", "up-2")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), res.NewBalance)

	upgrades, _ := l.Entries(ctx, "alice", ledger.EntryFilter{Kind: ledger.KindResellerUpgrade})
	assert.Len(t, upgrades, 2)
}

func TestUpgrade_AlreadyReseller_Rejected(t *testing.T) {
	l, r := newReconciler(t, &scriptedGateway{})
	account(t, l, "shop", ledger.RoleReseller, "")

	_, err := r.UpgradeToReseller(context.Background(), "shop", "up-1")
	assert.ErrorIs(t, err, funding.ErrAlreadyReseller)
}

func TestUpgrade_SameRequestID_Replays(t *testing.T) {
	gw := &scriptedGateway{verifications: map[string]*funding.Verification{
		"PAY123": successfulPayment("PAY123", "alice", 5000),
	}}
	l, r := newReconciler(t, gw)
	account(t, l, "alice", ledger.RoleUser, "")
	ctx := context.Background()

	_, err := r.Verify(ctx, "PAY123")
	require.NoError(t, err)

	_, err = r.UpgradeToReseller(ctx, "alice", "up-1")
	require.NoError(t, err)

	// The account is now a reseller, so the replay is caught by the
	// role gate before the idempotency key is even consulted.
	_, err = r.UpgradeToReseller(ctx, "alice", "up-1")
	assert.ErrorIs(t, err, funding.ErrAlreadyReseller)

	acct, _ := l.Account(ctx, "alice")
	assert.Equal(t, int64(4000), acct.Balance, "fee debited once")
}
