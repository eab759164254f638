/*
pricing.go - Role-based price tier selection

PURPOSE:
  One quote carries three prices; the requester's role picks which one
  they pay and what margin the platform keeps:

    admin     pays provider price   (profit 0 - internal purchases)
    reseller  pays reseller price   (profit = customer - reseller)
    user      pays customer price   (profit 0 here; the customer
              markup was already baked in at catalog sync time)

  A catalog where the reseller price exceeds the customer price is
  misconfigured and rejected outright before anything is journaled.
*/
package purchase

import (
	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/ledger"
)

// Pricing is the resolved charge for one purchase.
type Pricing struct {
	// Amount the buyer pays, smallest currency unit.
	Amount int64
	// Profit retained relative to the customer price.
	Profit int64
}

// PriceFor selects the tier for a role. ErrInvalidPricing when the
// quote is misconfigured.
func PriceFor(q *catalog.Quote, role ledger.Role) (*Pricing, error) {
	if q.ResellerPrice > q.CustomerPrice {
		return nil, ledger.ErrInvalidPricing
	}

	switch role {
	case ledger.RoleAdmin:
		return &Pricing{Amount: q.ProviderPrice}, nil
	case ledger.RoleReseller:
		return &Pricing{
			Amount: q.ResellerPrice,
			Profit: q.CustomerPrice - q.ResellerPrice,
		}, nil
	default:
		return &Pricing{Amount: q.CustomerPrice}, nil
	}
}
