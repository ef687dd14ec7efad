package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_hotspots"

// Metrics holds the Prometheus counters, histograms, and gauges for the hotspot pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	LastRunSuccess  prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Per-variable grid metrics.
	VariablesProcessed *prometheus.CounterVec   // labels: stage={delta,normalize,composite}, outcome={success,error}
	ValidCells         *prometheus.GaugeVec     // labels: grid
	StageDuration      *prometheus.HistogramVec // labels: stage

	// Zonal metrics.
	ZonesSummarized *prometheus.CounterVec // labels: dataset, outcome={success,error,empty}
	DegenerateZones prometheus.Counter
	RankedZones     prometheus.Gauge

	// Report loader metrics.
	LoaderErrors *prometheus.CounterVec // labels: loader
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run produced a report, 0 when it failed.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		VariablesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variables_processed_total",
			Help:      "Variables processed by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ValidCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_valid_cells",
			Help:      "Valid cells in each derived grid of the last run.",
		}, []string{"grid"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		ZonesSummarized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zones_summarized_total",
			Help:      "Zones summarized by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		DegenerateZones: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_zones_total",
			Help:      "Normalization zones with zero variance or no valid cells.",
		}),
		RankedZones: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranked_zones",
			Help:      "Zones in the global ranking of the last run.",
		}),
		LoaderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_errors_total",
			Help:      "Report loader failures by loader.",
		}, []string{"loader"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.LastRunSuccess,
		m.RunDuration,
		m.VariablesProcessed,
		m.ValidCells,
		m.StageDuration,
		m.ZonesSummarized,
		m.DegenerateZones,
		m.RankedZones,
		m.LoaderErrors,
	}
}

// WriteTextfile writes the default registry in the node exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
