package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wishlist"

var (
	PropagatedCopies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagated_copies_total",
			Help:      "Alternate-version copies written or removed by propagation.",
		},
		[]string{"op"},
	)

	PropagationSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_skipped_total",
			Help:      "Alternate versions skipped because the build's perks cannot roll on them.",
		},
	)

	PropagationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_failures_total",
			Help:      "Alternate-version copies that failed and were left unchanged.",
		},
		[]string{"op"},
	)

	VaultFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_fetches_total",
			Help:      "Vault loads by outcome (cache_hit, fetched, debounced, error).",
		},
		[]string{"outcome"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to Bungie and GitHub by service and status class.",
		},
		[]string{"service", "status"},
	)
)

// StatusClass turns an HTTP status into a low-cardinality label.
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
