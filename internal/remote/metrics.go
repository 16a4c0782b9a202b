package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics.
var (
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_remote_requests_total",
			Help: "Total number of write requests sent to the store server",
		},
		[]string{"operation", "collection", "outcome"},
	)

	remoteReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_remote_reconnects_total",
			Help: "Total number of snapshot stream reconnect attempts",
		},
		[]string{"collection", "outcome"},
	)
)
