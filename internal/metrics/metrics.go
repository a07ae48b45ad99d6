// Package metrics keeps the forecast pipeline's Prometheus metrics in a
// private registry and writes them out in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nextclose"

// Recorder collects pipeline metrics.
type Recorder struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	stageTime  *prometheus.HistogramVec
	prediction *prometheus.GaugeVec
	lastRun    *prometheus.GaugeVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_runs_total",
				Help:      "Forecast runs by outcome",
			},
			[]string{"ticker", "result"},
		),
		stageTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		prediction: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "forecast_price",
				Help:      "Latest predicted close and interval bounds",
			},
			[]string{"ticker", "bound"},
		),
		lastRun: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished run",
			},
			[]string{"ticker"},
		),
	}
}

// ObserveStage records how long a pipeline stage took.
func (r *Recorder) ObserveStage(stage string, seconds float64) {
	r.stageTime.WithLabelValues(stage).Observe(seconds)
}

// RecordRun counts a finished run; result is "success" or "failure".
func (r *Recorder) RecordRun(ticker, result string, unix float64) {
	r.runs.WithLabelValues(ticker, result).Inc()
	r.lastRun.WithLabelValues(ticker).Set(unix)
}

// RecordPrediction stores the latest yhat and its bounds.
func (r *Recorder) RecordPrediction(ticker string, yhat, lower, upper float64) {
	r.prediction.WithLabelValues(ticker, "yhat").Set(yhat)
	r.prediction.WithLabelValues(ticker, "lower").Set(lower)
	r.prediction.WithLabelValues(ticker, "upper").Set(upper)
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes every metric to path atomically. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
