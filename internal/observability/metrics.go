// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sync metrics
	FillsIngested     prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	PagesFetched      prometheus.Counter
	IncompleteWindows prometheus.Counter
	SymbolSyncErrors  *prometheus.CounterVec

	// Exchange client metrics
	ExchangeCallLatency *prometheus.HistogramVec
	ExchangeCallErrors  *prometheus.CounterVec

	// Review metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	LifecyclesFound prometheus.Gauge
	EventsEmitted   *prometheus.CounterVec
	DisciplineScore *prometheus.GaugeVec
	ReportsSent     prometheus.Counter

	// Health metrics
	LastSuccessfulSync   prometheus.Gauge
	LastSuccessfulReview prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trading_coach"
	}

	return &Metrics{
		FillsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "fills_ingested_total",
			Help:      "Total number of fills written to the ledger",
		}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of already-seen fills skipped during sync",
		}),
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Total number of fill pages fetched from the exchange",
		}),
		IncompleteWindows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "incomplete_windows_total",
			Help:      "Total number of sync windows abandoned at the page ceiling",
		}),
		SymbolSyncErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "symbol_errors_total",
			Help:      "Total number of per-symbol sync failures",
		}, []string{"symbol"}),

		ExchangeCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "call_latency_seconds",
			Help:      "Exchange REST call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ExchangeCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "call_errors_total",
			Help:      "Total number of exchange REST call errors by endpoint",
		}, []string{"endpoint"}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "runs_total",
			Help:      "Total number of review runs by kind and status",
		}, []string{"kind", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "run_duration_seconds",
			Help:      "Review run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		LifecyclesFound: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "lifecycles_found",
			Help:      "Number of lifecycles produced by the last sync",
		}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "events_emitted_total",
			Help:      "Total number of rule events recorded by severity",
		}, []string{"severity"}),
		DisciplineScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "discipline_score",
			Help:      "Discipline score of the most recent review by period kind",
		}, []string{"kind"}),
		ReportsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "reports_sent_total",
			Help:      "Total number of reports delivered to the notifier",
		}),

		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of the last successful sync run",
		}),
		LastSuccessfulReview: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_review_timestamp",
			Help:      "Unix timestamp of the last successful review run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance. promauto registers
// globally, so the instance is created once at package init.
var DefaultMetrics = NewMetrics("")

// RecordSyncReport folds a finished sync run into the counters.
func RecordSyncReport(fills, duplicates, pages, incompleteWindows, lifecycles int) {
	DefaultMetrics.FillsIngested.Add(float64(fills))
	DefaultMetrics.DuplicatesSkipped.Add(float64(duplicates))
	DefaultMetrics.PagesFetched.Add(float64(pages))
	DefaultMetrics.IncompleteWindows.Add(float64(incompleteWindows))
	DefaultMetrics.LifecyclesFound.Set(float64(lifecycles))
}

// RecordSymbolSyncError counts a per-symbol sync failure.
func RecordSymbolSyncError(symbol string) {
	DefaultMetrics.SymbolSyncErrors.WithLabelValues(symbol).Inc()
}

// RecordRun records a review run outcome and duration.
func RecordRun(kind, status string, seconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordScore publishes the score of the latest review of a period kind.
func RecordScore(kind string, score int) {
	DefaultMetrics.DisciplineScore.WithLabelValues(kind).Set(float64(score))
}

// RecordEvents counts newly recorded events by severity.
func RecordEvents(severity string, n int) {
	if n > 0 {
		DefaultMetrics.EventsEmitted.WithLabelValues(severity).Add(float64(n))
	}
}
