package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestCatalog(t *testing.T) *catalog.Service {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return catalog.NewService(store, catalog.DefaultMarkup())
}

func dataPlan(providerPlanID, name string, providerPrice int64) catalog.ProviderPlan {
	return catalog.ProviderPlan{
		ProviderPlanID:    providerPlanID,
		ServiceType:       catalog.ServiceData,
		Network:           "MTN",
		ProviderNetworkID: "1",
		Name:              name,
		Validity:          "30 days",
		ProviderPrice:     providerPrice,
	}
}

// =============================================================================
// MARKUP
// =============================================================================

func TestMarkup_Apply_RoundsUp(t *testing.T) {
	m := catalog.DefaultMarkup()

	// 10% of 255 is 25.5: the selling price rounds up to a whole unit.
	selling, reseller := m.Apply(255)
	assert.Equal(t, int64(281), selling)  // 280.5 -> 281
	assert.Equal(t, int64(268), reseller) // 267.75 -> 268

	// Exact multiples need no rounding.
	selling, reseller = m.Apply(1000)
	assert.Equal(t, int64(1100), selling)
	assert.Equal(t, int64(1050), reseller)
}

// =============================================================================
// SIZE PARSING
// =============================================================================

func TestParseSizeGB(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"MTN 1GB SME", "1"},
		{"2.5GB Monthly", "2.5"},
		{"500MB Daily", "0.48828125"},
		{"1TB Broadband", "1024"},
		{"1.5 gb weekend", "1.5"},
		{"Awoof 200.0MB", "0.1953125"},
		{"Voice Bundle", "0"},
		{"", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := catalog.ParseSizeGB(tc.name)
			want, err := decimal.NewFromString(tc.want)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s want %s", got, want)
		})
	}
}

// =============================================================================
// SYNC
// =============================================================================

func TestSync_NewPlansGetMarkupPrices(t *testing.T) {
	// GIVEN: An empty catalog
	// WHEN: The provider feed is synced
	// THEN: Plans appear with markup-derived prices and parsed sizes

	svc := newTestCatalog(t)
	ctx := context.Background()

	n, err := svc.Sync(ctx, []catalog.ProviderPlan{
		dataPlan("101", "MTN 1GB SME", 1000),
		dataPlan("102", "MTN 2GB SME", 2000),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	plans, err := svc.Plans(ctx, catalog.ServiceData)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	one := plans[0]
	assert.Equal(t, int64(1100), one.SellingPrice)
	assert.Equal(t, int64(1050), one.ResellerPrice)
	assert.True(t, one.SizeGB.Equal(decimal.NewFromInt(1)))
	assert.True(t, one.Active)
}

func TestSync_SkipsMalformedFeedRows(t *testing.T) {
	svc := newTestCatalog(t)

	n, err := svc.Sync(context.Background(), []catalog.ProviderPlan{
		dataPlan("", "no provider id", 1000),
		dataPlan("101", "no price", 0),
		dataPlan("102", "MTN 1GB SME", 1000),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSync_PreservesAdminPricing(t *testing.T) {
	// GIVEN: A synced plan whose selling price an admin then overrides
	// WHEN: The same provider plan is synced again at a new cost
	// THEN: Provider-side fields refresh but the admin prices survive

	svc := newTestCatalog(t)
	ctx := context.Background()

	_, err := svc.Sync(ctx, []catalog.ProviderPlan{dataPlan("101", "MTN 1GB SME", 1000)})
	require.NoError(t, err)

	plans, err := svc.Plans(ctx, catalog.ServiceData)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	planID := plans[0].ID

	require.NoError(t, svc.SetSellingPrice(ctx, planID, 1500))

	_, err = svc.Sync(ctx, []catalog.ProviderPlan{dataPlan("101", "MTN 1GB SME PROMO", 1200)})
	require.NoError(t, err)

	quote, err := svc.Quote(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), quote.CustomerPrice, "admin selling price must survive sync")
	assert.Equal(t, int64(1200), quote.ProviderPrice, "provider cost must refresh")
	assert.Equal(t, "MTN 1GB SME PROMO", quote.Name)
}

// =============================================================================
// ADMIN PRICING
// =============================================================================

func TestSetSellingPrice_DerivesResellerPrice(t *testing.T) {
	// The reseller price lands 2.5% below the selling price, rounded up.
	svc := newTestCatalog(t)
	ctx := context.Background()

	_, err := svc.Sync(ctx, []catalog.ProviderPlan{dataPlan("101", "MTN 1GB SME", 1000)})
	require.NoError(t, err)
	plans, _ := svc.Plans(ctx, catalog.ServiceData)
	planID := plans[0].ID

	require.NoError(t, svc.SetSellingPrice(ctx, planID, 1000))

	quote, err := svc.Quote(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), quote.CustomerPrice)
	assert.Equal(t, int64(975), quote.ResellerPrice)
}

func TestSetSellingPrice_Validation(t *testing.T) {
	svc := newTestCatalog(t)

	err := svc.SetSellingPrice(context.Background(), "whatever", 0)
	assert.ErrorIs(t, err, catalog.ErrInvalidPrice)

	err = svc.SetSellingPrice(context.Background(), "missing", 100)
	assert.ErrorIs(t, err, catalog.ErrPlanNotFound)
}

func TestQuote_UnknownPlan(t *testing.T) {
	svc := newTestCatalog(t)

	_, err := svc.Quote(context.Background(), "missing")
	assert.ErrorIs(t, err, catalog.ErrPlanNotFound)
}
