/*
Package metrics exposes Prometheus instrumentation for the wallet
engine.

PURPOSE:
  Counts the money-movement outcomes operators actually page on:
  purchases by service type and outcome, ambiguous provider responses
  awaiting reconciliation, funding credits and commission payouts.

USAGE:
  metrics.Purchases.WithLabelValues("data", "success").Inc()

  The /metrics endpoint is registered in api.NewRouter via promhttp.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Purchases counts purchase attempts by service type and terminal
	// outcome (success, failed, ambiguous, insufficient_funds).
	Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_purchases_total",
		Help: "Purchase attempts by service type and outcome",
	}, []string{"service", "outcome"})

	// ProviderAmbiguous counts provider responses that could not be
	// classified. Each one is a journal entry flagged for out-of-band
	// reconciliation.
	ProviderAmbiguous = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_provider_ambiguous_total",
		Help: "Provider responses that could not be classified",
	})

	// FundingCredits counts wallet funding credits applied.
	FundingCredits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_funding_credits_total",
		Help: "Wallet funding credits applied",
	})

	// CommissionPayouts counts commission entries settled.
	CommissionPayouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_commission_payouts_total",
		Help: "Referral commission payouts settled",
	})

	// ReferralBonuses counts one-time first-funding bonuses paid.
	ReferralBonuses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_referral_bonuses_total",
		Help: "First-funding referral bonuses paid",
	})
)
