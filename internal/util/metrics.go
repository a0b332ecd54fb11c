package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout attempts started",
	})

	CheckoutReadyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_ready_total",
		Help: "Total number of checkout attempts that produced a payment session",
	})

	CheckoutRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_rejected_total",
		Help: "Total number of rejected checkout attempts",
	}, []string{"reason"})

	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_created_total",
		Help: "Total number of stock reservations created",
	})

	ReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_expired_total",
		Help: "Total number of stock reservations reclaimed by expiry",
	})

	ReservationsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_confirmed_total",
		Help: "Total number of stock reservations confirmed at settlement",
	})

	ReservationConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_conflicts_total",
		Help: "Settlements that arrived after their reservations had lapsed",
	})

	ReservationBatchFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservation_batches_failed_total",
		Help: "Total number of failed all-or-nothing reservation batches",
	}, []string{"reason"})

	ReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of reservation batch creation",
		Buckets: prometheus.DefBuckets,
	})

	DistanceLookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "distance_lookup_latency_seconds",
		Help:    "Latency of distance oracle lookups",
		Buckets: prometheus.DefBuckets,
	})

	DistanceLookupFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "distance_lookup_fallbacks_total",
		Help: "Distance lookups that fell back to the straight-line estimate",
	})

	PaymentSessionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_session_latency_seconds",
		Help:    "Latency of payment session creation",
		Buckets: prometheus.DefBuckets,
	})

	PaymentSessionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_session_failures_total",
		Help: "Total number of failed payment session creations",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
