package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sweepMetrics lives in a private registry that is dumped to a node
// exporter textfile when the sweep ends.
type sweepMetrics struct {
	registry *prometheus.Registry

	planned         prometheus.Gauge
	points          *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	lastSuccess     prometheus.Gauge
}

func newSweepMetrics(sweep string) *sweepMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"sweep": sweep}

	return &sweepMetrics{
		registry: reg,
		planned: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ioam_bench_sweep_points_planned",
			Help:        "Number of points in the sweep plan.",
			ConstLabels: labels,
		}),
		points: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "ioam_bench_sweep_points_total",
			Help:        "Number of sweep points by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "ioam_bench_session_duration_seconds",
			Help:        "Wall time of one traffic generator run.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(15, 2, 8),
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ioam_bench_sweep_last_success_timestamp_seconds",
			Help:        "Unix time of the last sweep that completed every point.",
			ConstLabels: labels,
		}),
	}
}

func (m *sweepMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
