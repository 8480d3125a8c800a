package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus instruments the reconciliation engine
// drives through one reconciliation cycle.
type Metrics struct {
	cyclesTotal      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	syncResultsTotal *prometheus.CounterVec
	ticksDropped     prometheus.Counter
}

// NewMetrics registers and returns the metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitops_sync_cycles_total",
			Help: "Total reconciliation cycles, labeled by outcome.",
		}, []string{"outcome"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gitops_sync_cycle_duration_seconds",
			Help:    "Duration of completed reconciliation cycles.",
			Buckets: prometheus.DefBuckets,
		}),
		syncResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gitops_sync_application_results_total",
			Help: "Per-application sync outcomes, labeled by action and success.",
		}, []string{"action", "success"}),
		ticksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gitops_sync_ticks_dropped_total",
			Help: "Ticks dropped because a cycle was already in progress.",
		}),
	}
}
