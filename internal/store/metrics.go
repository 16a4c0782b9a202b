package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics.
var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_store_operations_total",
			Help: "Total number of store write operations",
		},
		[]string{"operation", "collection"},
	)

	storeSnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_store_snapshots_published_total",
			Help: "Total number of snapshots pushed to subscribers",
		},
		[]string{"collection"},
	)

	storeSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grocery_store_subscribers",
			Help: "Number of live collection subscriptions",
		},
		[]string{"collection"},
	)
)
