package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync outcomes recorded by QuoteMetrics.ObserveSync.
const (
	SyncOutcomeMerged      = "merged"
	SyncOutcomeFetchFailed = "fetch_failed"
	SyncOutcomePersistFail = "persist_failed"
)

// QuoteMetrics groups the Prometheus instruments for the quote book.
// A nil *QuoteMetrics is valid and records nothing.
type QuoteMetrics struct {
	Mutations    *prometheus.CounterVec
	QuoteCount   prometheus.Gauge
	SyncRuns     *prometheus.CounterVec
	SyncDuration prometheus.Histogram
	MergeRecords *prometheus.CounterVec
	ImportItems  *prometheus.CounterVec
}

// NewQuoteMetrics registers the instruments on reg. Pass
// prometheus.DefaultRegisterer to expose them on /-/metrics.
func NewQuoteMetrics(namespace string, reg prometheus.Registerer) *QuoteMetrics {
	factory := promauto.With(reg)

	return &QuoteMetrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Quote book mutations by operation and result.",
		}, []string{"op", "result"}),
		QuoteCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quotes",
			Help:      "Number of quotes currently held.",
		}),
		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Remote reconciliation runs by outcome.",
		}, []string{"outcome"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of one remote reconciliation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		MergeRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_records_total",
			Help:      "Remote records applied by kind (updated, appended).",
		}, []string{"kind"}),
		ImportItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_items_total",
			Help:      "Imported elements by outcome (added, skipped, invalid).",
		}, []string{"outcome"}),
	}
}

// ObserveMutation counts one mutation attempt.
func (m *QuoteMetrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.Mutations.WithLabelValues(op, result).Inc()
}

// SetQuoteCount records the current list length.
func (m *QuoteMetrics) SetQuoteCount(n int) {
	if m == nil {
		return
	}

	m.QuoteCount.Set(float64(n))
}

// ObserveImport adds the per-element outcomes of one import.
func (m *QuoteMetrics) ObserveImport(added, skipped, invalid int) {
	if m == nil {
		return
	}

	m.ImportItems.WithLabelValues("added").Add(float64(added))
	m.ImportItems.WithLabelValues("skipped").Add(float64(skipped))
	m.ImportItems.WithLabelValues("invalid").Add(float64(invalid))
}

// ObserveSync records one reconciliation run.
func (m *QuoteMetrics) ObserveSync(outcome string, elapsed time.Duration, updated, appended int) {
	if m == nil {
		return
	}

	m.SyncRuns.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(elapsed.Seconds())
	m.MergeRecords.WithLabelValues("updated").Add(float64(updated))
	m.MergeRecords.WithLabelValues("appended").Add(float64(appended))
}
