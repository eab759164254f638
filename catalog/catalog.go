/*
Package catalog provides the purchasable plan catalog and its pricing.

PURPOSE:
  Holds the plans a wallet can be spent on (data bundles, airtime,
  electricity, cable) together with their three price points:

  - provider price:  what the fulfillment provider charges us
  - selling price:   what a normal user pays
  - reseller price:  what a reseller pays

  The purchase orchestrator consumes the catalog through Quote(), which
  returns an immutable snapshot. A quote is taken once per purchase
  attempt and never re-fetched mid-transaction.

PRICING:
  Selling and reseller prices are derived from the provider price at
  sync time using configured markup percentages, rounded up to a whole
  currency unit. Markups are explicit configuration passed in, never
  process-wide mutable state. Re-syncing refreshes provider data but
  does not touch prices an admin has already set.

SEE ALSO:
  - purchase/pricing.go: role-based price tier selection on a Quote
  - store/sqlite/sqlite.go: PlanStore implementation
*/
package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrPlanNotFound is returned for unknown or inactive plans.
var ErrPlanNotFound = errors.New("plan not found")

// ErrInvalidPrice is returned when an admin sets a non-positive
// selling price.
var ErrInvalidPrice = errors.New("invalid selling price")

// =============================================================================
// TYPES
// =============================================================================

// ServiceType classifies what a plan delivers.
type ServiceType string

const (
	ServiceData        ServiceType = "data"
	ServiceAirtime     ServiceType = "airtime"
	ServiceElectricity ServiceType = "electricity"
	ServiceCable       ServiceType = "cable"
)

// Valid reports whether s is a known service type.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceData, ServiceAirtime, ServiceElectricity, ServiceCable:
		return true
	}
	return false
}

// Plan is one purchasable item.
type Plan struct {
	ID          string      `json:"id"`
	ServiceType ServiceType `json:"service_type"`

	// Network is the human name (MTN, AIRTEL, DSTV, IKEJA_ELECTRIC);
	// the Provider* fields are what the fulfillment provider needs to
	// place the order.
	Network           string `json:"network"`
	ProviderNetworkID string `json:"provider_network_id"`
	ProviderPlanID    string `json:"provider_plan_id"`

	Name     string `json:"name"`
	PlanType string `json:"plan_type,omitempty"`

	// SizeGB is the data volume for data plans, zero otherwise.
	SizeGB decimal.Decimal `json:"size_gb"`

	// Prices in the smallest currency unit.
	ProviderPrice int64 `json:"provider_price"`
	SellingPrice  int64 `json:"selling_price"`
	ResellerPrice int64 `json:"reseller_price"`

	Validity string `json:"validity,omitempty"`
	Active   bool   `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Quote is the immutable pricing snapshot handed to the purchase
// orchestrator. It carries everything needed to place the provider
// order without another catalog read.
type Quote struct {
	PlanID            string
	ServiceType       ServiceType
	Network           string
	ProviderNetworkID string
	ProviderPlanID    string
	Name              string
	SizeGB            decimal.Decimal

	ProviderPrice int64
	CustomerPrice int64
	ResellerPrice int64

	Validity string
}

// =============================================================================
// PLAN STORE
// =============================================================================

// PlanStore persists plans.
type PlanStore interface {
	// UpsertSyncedPlan inserts a plan or refreshes its provider-side
	// fields. Prices are only written on insert.
	UpsertSyncedPlan(ctx context.Context, p Plan) error

	// Plan loads one plan by id. ErrPlanNotFound when missing.
	Plan(ctx context.Context, id string) (*Plan, error)

	// PlanByProviderID loads one plan by the provider's plan code.
	PlanByProviderID(ctx context.Context, providerPlanID string) (*Plan, error)

	// Plans lists plans, optionally filtered by service type.
	Plans(ctx context.Context, st ServiceType) ([]Plan, error)

	// SetPlanPrices overwrites the selling and reseller price.
	SetPlanPrices(ctx context.Context, id string, selling, reseller int64) error
}

// =============================================================================
// MARKUP
// =============================================================================

// Markup is the configured margin applied on top of provider prices.
type Markup struct {
	CustomerPercent decimal.Decimal
	ResellerPercent decimal.Decimal
}

// DefaultMarkup mirrors the platform defaults: 10% customer, 5% reseller.
func DefaultMarkup() Markup {
	return Markup{
		CustomerPercent: decimal.NewFromInt(10),
		ResellerPercent: decimal.NewFromInt(5),
	}
}

// Apply derives selling and reseller prices from a provider price,
// rounding up to a whole currency unit.
func (m Markup) Apply(providerPrice int64) (selling, reseller int64) {
	p := decimal.NewFromInt(providerPrice)
	hundred := decimal.NewFromInt(100)
	selling = p.Mul(hundred.Add(m.CustomerPercent)).Div(hundred).Ceil().IntPart()
	reseller = p.Mul(hundred.Add(m.ResellerPercent)).Div(hundred).Ceil().IntPart()
	return selling, reseller
}

// resellerDiscountPercent is applied when an admin sets a selling
// price directly: the reseller price lands 2.5% below it.
var resellerDiscountPercent = decimal.NewFromFloat(2.5)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the catalog facade.
type Service struct {
	store  PlanStore
	markup Markup
}

// NewService creates a catalog service with the given markup config.
func NewService(store PlanStore, markup Markup) *Service {
	return &Service{store: store, markup: markup}
}

// Quote returns the pricing snapshot for one plan. Inactive plans are
// not quotable.
func (s *Service) Quote(ctx context.Context, planID string) (*Quote, error) {
	p, err := s.store.Plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlanNotFound
	}
	return &Quote{
		PlanID:            p.ID,
		ServiceType:       p.ServiceType,
		Network:           p.Network,
		ProviderNetworkID: p.ProviderNetworkID,
		ProviderPlanID:    p.ProviderPlanID,
		Name:              p.Name,
		SizeGB:            p.SizeGB,
		ProviderPrice:     p.ProviderPrice,
		CustomerPrice:     p.SellingPrice,
		ResellerPrice:     p.ResellerPrice,
		Validity:          p.Validity,
	}, nil
}

// Plans lists plans, optionally filtered.
func (s *Service) Plans(ctx context.Context, st ServiceType) ([]Plan, error) {
	return s.store.Plans(ctx, st)
}

// ProviderPlan is one plan as returned by the provider's catalog feed.
type ProviderPlan struct {
	ProviderPlanID    string
	ServiceType       ServiceType
	Network           string
	ProviderNetworkID string
	Name              string
	PlanType          string
	Validity          string
	ProviderPrice     int64
}

// Sync upserts a provider plan list. New plans get markup-derived
// prices; existing plans only have their provider-side fields
// refreshed so admin pricing survives a sync. Returns how many plans
// were processed.
func (s *Service) Sync(ctx context.Context, plans []ProviderPlan) (int, error) {
	now := time.Now().UTC()
	n := 0
	for _, pp := range plans {
		if pp.ProviderPlanID == "" || pp.ProviderPrice <= 0 {
			continue
		}
		selling, reseller := s.markup.Apply(pp.ProviderPrice)
		p := Plan{
			ID:                uuid.NewString(),
			ServiceType:       pp.ServiceType,
			Network:           pp.Network,
			ProviderNetworkID: pp.ProviderNetworkID,
			ProviderPlanID:    pp.ProviderPlanID,
			Name:              pp.Name,
			PlanType:          pp.PlanType,
			SizeGB:            ParseSizeGB(pp.Name),
			ProviderPrice:     pp.ProviderPrice,
			SellingPrice:      selling,
			ResellerPrice:     reseller,
			Validity:          pp.Validity,
			Active:            true,
			CreatedAt:         now,
			SyncedAt:          now,
		}
		if err := s.store.UpsertSyncedPlan(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// SetSellingPrice sets a plan's selling price directly and derives the
// reseller price 2.5% below it, rounded up.
func (s *Service) SetSellingPrice(ctx context.Context, planID string, selling int64) error {
	if selling <= 0 {
		return ErrInvalidPrice
	}
	if _, err := s.store.Plan(ctx, planID); err != nil {
		return err
	}
	hundred := decimal.NewFromInt(100)
	reseller := decimal.NewFromInt(selling).
		Mul(hundred.Sub(resellerDiscountPercent)).
		Div(hundred).Ceil().IntPart()
	return s.store.SetPlanPrices(ctx, planID, selling, reseller)
}

// =============================================================================
// SIZE PARSING
// =============================================================================

var sizeRe = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(GB|MB|TB)`)

// ParseSizeGB extracts the data volume from a plan name like "2.5GB"
// or "500MB", normalized to gigabytes. Returns zero when the name
// carries no recognizable size.
func ParseSizeGB(name string) decimal.Decimal {
	m := sizeRe.FindStringSubmatch(name)
	if m == nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero
	}
	switch strings.ToUpper(m[2]) {
	case "TB":
		return v.Mul(decimal.NewFromInt(1024))
	case "MB":
		return v.Div(decimal.NewFromInt(1024))
	}
	return v
}
