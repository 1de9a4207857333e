// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "izposoja"

// ─── Lending ────────────────────────────────────────────────────────────────

// CopyTransitions counts committed copy status changes.
var CopyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "copy_transitions_total",
	Help:      "Committed physical copy status changes.",
}, []string{"from", "to"})

// Operations counts lending operations by outcome. result is "ok" or the
// error family returned to the caller.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "operations_total",
	Help:      "Lending operations by name and result.",
}, []string{"op", "result"})

// Retries counts transactions re-run after sqlite lock contention.
var Retries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "busy_retries_total",
	Help:      "Transactions retried after SQLITE_BUSY or SQLITE_LOCKED.",
}, []string{"op"})

// FinesAssessed counts newly created fines.
var FinesAssessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "fines",
	Name:      "assessed_total",
	Help:      "Fines created, by kind.",
}, []string{"kind"})

// NotificationFailures counts notices the gateway failed to deliver.
var NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "notify",
	Name:      "failures_total",
	Help:      "Reader notifications that could not be delivered.",
})

// ─── Reconciler ─────────────────────────────────────────────────────────────

// ReconcilerRecords counts records handled by reconciler ticks.
var ReconcilerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reconciler",
	Name:      "records_total",
	Help:      "Borrows marked overdue and reservations expired, by result.",
}, []string{"kind", "result"})

// ReconcilerDuration tracks how long a reconciler tick takes.
var ReconcilerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "reconciler",
	Name:      "tick_duration_seconds",
	Help:      "Duration of a reconciler tick.",
	Buckets:   prometheus.DefBuckets,
})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests tracks API request latency by method and status code.
var HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "API request latency.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"method", "code"})
