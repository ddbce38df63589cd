// Package metrics declares the Prometheus collectors of the rental service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"          // Prometheus client
	"github.com/prometheus/client_golang/prometheus/promauto" // Auto-registered collectors
)

// Allocation metrics
var (
	// AllocationsTotal counts free server allocation attempts by result (allocated, unavailable)
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_allocations_total",
			Help: "Free server allocation attempts by result",
		},
		[]string{"result"},
	)

	// DeallocationsTotal counts released servers by reason (logout, release, eviction, purchase, admin)
	DeallocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_deallocations_total",
			Help: "Server releases by reason",
		},
		[]string{"reason"},
	)

	// AllocationConflicts counts lost compare-and-set claims on a server
	AllocationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rental_allocation_conflicts_total",
			Help: "Occupancy claims lost to a concurrent writer",
		},
	)
)

// Purchase metrics
var (
	// PurchasesTotal counts purchase attempts by result code
	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_purchases_total",
			Help: "Purchase attempts by result",
		},
		[]string{"result"},
	)

	// CoinsSpentTotal counts coins paid for servers
	CoinsSpentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rental_coins_spent_total",
			Help: "Coins paid for server purchases",
		},
	)
)

// Metering metrics
var (
	// SweepsTotal counts metering sweeps by status
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_sweeps_total",
			Help: "Metering sweeps by status (ok, error, skipped)",
		},
		[]string{"status"},
	)

	// SweepDuration tracks sweep latency in seconds
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rental_sweep_duration_seconds",
			Help:    "Metering sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CoinsDeductedTotal counts coins removed by metering
	CoinsDeductedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rental_coins_deducted_total",
			Help: "Coins removed from occupied users by metering",
		},
	)

	// EvictionsTotal counts users removed for running out of coins
	EvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rental_evictions_total",
			Help: "Users deallocated for running out of coins",
		},
	)
)

// Inventory and HTTP metrics
var (
	// ServersOccupied tracks occupied servers as of the last stats read
	ServersOccupied = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rental_servers_occupied",
			Help: "Occupied servers as of the last stats read",
		},
	)

	// ServersTotal tracks the inventory size as of the last stats read
	ServersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rental_servers_total",
			Help: "Servers in the inventory as of the last stats read",
		},
	)

	// HTTPRequestsTotal counts requests by method, route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rental_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route"},
	)
)
