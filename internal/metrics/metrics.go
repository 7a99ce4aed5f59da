package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions for the marketplace API

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "market",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"method", "route"},
	)

	// Bid domain metrics
	BidsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: "bid",
			Name:      "submitted_total",
			Help:      "Bid submissions by result",
		},
		[]string{"result"},
	)

	BidDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: "bid",
			Name:      "decisions_total",
			Help:      "Owner decisions persisted on bids",
		},
		[]string{"status"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Decision notifications by result",
		},
		[]string{"result"},
	)

	// Store metrics
	StoreTxnRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: "store",
			Name:      "txn_retries_total",
			Help:      "Optimistic transaction retries after a conflicting write",
		},
	)
)
