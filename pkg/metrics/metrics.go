// Package metrics holds the service's Prometheus collectors. They register
// on the default registry and are served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionBuilds counts wallet callbacks that asked for a partially
	// signed transaction, by mode (transfer, swap) and outcome (ok,
	// invalid_input, error).
	TransactionBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monstrepay",
		Name:      "transaction_builds_total",
		Help:      "Partially signed transactions built, by mode and outcome.",
	}, []string{"mode", "outcome"})

	// PollTicks counts confirmation poller ledger checks across all
	// checkouts.
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monstrepay",
		Name:      "poll_ticks_total",
		Help:      "Ledger checks performed by confirmation pollers.",
	})

	// Confirmations counts terminal poller outcomes (valid, invalid).
	Confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monstrepay",
		Name:      "confirmations_total",
		Help:      "Terminal confirmation outcomes.",
	}, []string{"result"})
)
