// Package metrics provides Prometheus metrics for the prescription pad.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	DraftsSaved         prometheus.Counter
	DraftsRestored      prometheus.Counter
	PatientSwitches     prometheus.Counter
	FlushesTotal        prometheus.Counter
	FlushSlotFailures   prometheus.Counter
	DuplicateSuppressed prometheus.Counter
	FlushDuration       prometheus.Histogram
	ActiveSessions      prometheus.Gauge
	EventsPublished     prometheus.Counter
	EventsConsumed      prometheus.Counter
	OutboxPending       prometheus.Gauge
	StockReservations   prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		DraftsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drafts_saved_total",
			Help: "Draft slots snapshotted into the session store",
		}),
		DraftsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drafts_restored_total",
			Help: "Draft slots restored from the session store",
		}),
		PatientSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patient_switches_total",
			Help: "Active-patient switches within sessions",
		}),
		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flushes_total",
			Help: "Session flush passes",
		}),
		FlushSlotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flush_slot_failures_total",
			Help: "Slots whose persistence failed during a flush",
		}),
		DuplicateSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duplicate_identities_suppressed_total",
			Help: "Temporary drafts suppressed by identity fingerprint",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flush_duration_seconds",
			Help:    "Session flush duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Currently open editing sessions",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published to the broker",
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Events consumed from the broker",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		StockReservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Stock reservations applied by the dispense worker",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.DraftsSaved,
		m.DraftsRestored,
		m.PatientSwitches,
		m.FlushesTotal,
		m.FlushSlotFailures,
		m.DuplicateSuppressed,
		m.FlushDuration,
		m.ActiveSessions,
		m.EventsPublished,
		m.EventsConsumed,
		m.OutboxPending,
		m.StockReservations,
		m.CircuitBreakerState,
	)
	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
