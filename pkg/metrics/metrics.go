// Package metrics exposes per-stage pipeline counters. Runs are short-lived
// CLI invocations, so metrics are written to a node-exporter textfile
// instead of being served.
package metrics

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

type Metrics struct {
	registry *prometheus.Registry

	// ItemsTotal counts visited items per stage and outcome
	ItemsTotal *prometheus.CounterVec
	// ItemDuration tracks per-item processing latency
	ItemDuration *prometheus.HistogramVec
	// RunDuration is the wall time of the last run per stage
	RunDuration *prometheus.GaugeVec
	// LastRunTimestamp is when the last run of a stage finished
	LastRunTimestamp *prometheus.GaugeVec
	// RunAborted is 1 when the last run of a stage hit a rate limit
	RunAborted *prometheus.GaugeVec
	// Clusters is the number of clusters produced by the last normalization
	Clusters *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sutta_items_total",
				Help: "Total number of items visited by a pipeline stage",
			},
			[]string{"stage", "outcome"},
		),
		ItemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sutta_item_duration_seconds",
				Help:    "Per-item processing time in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		RunDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sutta_run_duration_seconds",
				Help: "Duration of the last run in seconds",
			},
			[]string{"stage"},
		),
		LastRunTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sutta_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
			[]string{"stage"},
		),
		RunAborted: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sutta_run_aborted",
				Help: "1 if the last run stopped on a rate limit, else 0",
			},
			[]string{"stage"},
		),
		Clusters: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sutta_clusters",
				Help: "Number of clusters produced by the last normalization",
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes every metric in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Observer returns a pipeline.Observer feeding these metrics.
func (m *Metrics) Observer() pipeline.Observer { return observer{m} }

type observer struct {
	m *Metrics
}

func (o observer) BeforeRun(context.Context, pipeline.RunInfo) error { return nil }

func (o observer) AfterItem(_ context.Context, r pipeline.ItemResult) error {
	o.m.ItemsTotal.WithLabelValues(r.Stage, string(r.Outcome)).Inc()
	o.m.ItemDuration.WithLabelValues(r.Stage).Observe(r.Duration.Seconds())
	return nil
}

func (o observer) AfterRun(_ context.Context, s pipeline.Summary, _ error) error {
	o.m.RunDuration.WithLabelValues(s.Stage).Set(s.Duration.Seconds())
	o.m.LastRunTimestamp.WithLabelValues(s.Stage).Set(float64(s.StartedAt.Add(s.Duration).Unix()))
	aborted := 0.0
	if s.Aborted {
		aborted = 1
	}
	o.m.RunAborted.WithLabelValues(s.Stage).Set(aborted)
	return nil
}
