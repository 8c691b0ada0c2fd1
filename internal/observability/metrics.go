// README: Prometheus collectors for fares, promos, bookings and live subscriptions.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gogo"

var (
	FareQuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fare_quotes_total", Help: "Fares computed, by vehicle class"},
		[]string{"vehicle_class"},
	)
	RouteFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "route_fallbacks_total", Help: "Fares priced on the straight-line fallback route",
	})
	PromoAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "promo_attempts_total", Help: "Promo apply attempts, by outcome"},
		[]string{"outcome"},
	)
	PromoUnknownKindTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "promo_unknown_kind_total", Help: "Promos skipped because their discount kind is unknown",
	})
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bookings_total", Help: "Ride booking attempts, by outcome"},
		[]string{"outcome"},
	)
	SubscriptionPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "subscription_pushes_total", Help: "Store pushes handled, by stream and outcome"},
		[]string{"stream", "outcome"},
	)
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_sessions", Help: "Ride sessions held in memory",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
