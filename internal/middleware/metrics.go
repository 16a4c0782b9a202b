package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_http_requests_total",
			Help: "HTTP requests served, by route, collection and status.",
		},
		[]string{"method", "route", "collection", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grocery_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grocery_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)
)

// Metrics records request counts and latency per route template.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			start := time.Now()
			sr := record(w)
			next.ServeHTTP(sr, r)

			route := routeLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, collectionLabel(r), strconv.Itoa(sr.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// collectionLabel bounds the label to the known collections.
func collectionLabel(r *http.Request) string {
	c, ok := mux.Vars(r)["collection"]
	switch {
	case !ok:
		return "none"
	case model.ValidCollection(c):
		return c
	default:
		return "unknown"
	}
}
