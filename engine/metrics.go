package engine

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "engine"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Accepted bids, labelled by source (manual or proxy).
	BidsAccepted metrics.Counter
	// Rejected bids, labelled by error code.
	BidsRejected metrics.Counter
	// Number of anti-sniping extensions applied.
	AuctionExtensions metrics.Counter
	// Closed auctions, labelled by outcome (sold or expired).
	AuctionsClosed metrics.Counter
	// Offer transitions, labelled by action.
	Offers metrics.Counter
	// Created orders, labelled by source (auction or offer).
	OrdersMaterialized metrics.Counter
	// Lock acquisition timeouts, labelled by operation.
	LockContention metrics.Counter
	// Time spent inside a listing's critical section, labelled by operation.
	CriticalSection metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		BidsAccepted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bids_accepted_total",
			Help:      "Number of accepted bids.",
		}, []string{"source"}),
		BidsRejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bids_rejected_total",
			Help:      "Number of rejected bids.",
		}, []string{"reason"}),
		AuctionExtensions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "auction_extensions_total",
			Help:      "Number of times a late bid extended an auction.",
		}, []string{}),
		AuctionsClosed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "auctions_closed_total",
			Help:      "Number of auctions closed by the sweep.",
		}, []string{"outcome"}),
		Offers: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "offers_total",
			Help:      "Number of offer transitions.",
		}, []string{"action"}),
		OrdersMaterialized: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_materialized_total",
			Help:      "Number of orders created.",
		}, []string{"source"}),
		LockContention: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "lock_contention_total",
			Help:      "Number of listing lock acquisition timeouts.",
		}, []string{"op"}),
		CriticalSection: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "critical_section_seconds",
			Help:      "Time spent holding a listing lock.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BidsAccepted:       discard.NewCounter(),
		BidsRejected:       discard.NewCounter(),
		AuctionExtensions:  discard.NewCounter(),
		AuctionsClosed:     discard.NewCounter(),
		Offers:             discard.NewCounter(),
		OrdersMaterialized: discard.NewCounter(),
		LockContention:     discard.NewCounter(),
		CriticalSection:    discard.NewHistogram(),
	}
}
