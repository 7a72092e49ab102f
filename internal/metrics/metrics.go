// Package metrics provides a centralized Prometheus registry for the
// pipeline's instrumentation.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RowsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hrpm",
		Name:      "rows_dropped_total",
		Help:      "Rows removed during cleaning for undefined speed targets",
	})
	ValuesImputedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hrpm",
		Name:      "values_imputed_total",
		Help:      "Missing values filled from the frozen per-going median lookup",
	})
	ValuesLeftMissingTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hrpm",
		Name:      "values_left_missing_total",
		Help:      "Missing values with no lookup entry, left missing by design",
	})
	UnknownCategoriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hrpm",
		Name:      "unknown_categories_total",
		Help:      "Categorical values absent from the frozen one-hot vocabulary",
	})
	MalformedValuesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hrpm",
		Name:      "malformed_values_total",
		Help:      "Unparseable numeric cells treated as missing at load time",
	})
)

// Gauge metrics
var (
	SelectedFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrpm",
		Name:      "selected_features",
		Help:      "Size K of the selected feature set",
	})
	SimulationDraws = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrpm",
		Name:      "simulation_draws",
		Help:      "Monte Carlo draw count per race",
	})
)

// Histogram metrics
var (
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hrpm",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of each pipeline stage",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"stage"})
)

// InitRegistry initializes the global registry and registers all metrics.
func InitRegistry() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			RowsDroppedTotal,
			ValuesImputedTotal,
			ValuesLeftMissingTotal,
			UnknownCategoriesTotal,
			MalformedValuesTotal,
			SelectedFeatures,
			SimulationDraws,
			StageDuration,
		)
	})
}

// GetRegistry returns the global registry, initializing it if needed.
func GetRegistry() *prometheus.Registry {
	InitRegistry()
	return registry
}

// Handler returns an HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}
