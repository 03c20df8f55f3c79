// Package metrics exposes pipeline measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

const namespace = "salesrecon"

// Collector records pipeline observations. It implements core.Observer and
// is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	ruleRows      *prometheus.CounterVec
	ruleRuns      *prometheus.CounterVec
	runs          prometheus.Counter
	runRows       prometheus.Histogram
	runWarnings   prometheus.Counter
	activeRuns    prometheus.GaugeFunc
}

var _ core.Observer = (*Collector)(nil)

// New creates a collector on its own registry. active, when non-nil,
// reports the number of pipeline runs in progress.
func New(active func() float64) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		ruleRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exception_rows_total",
			Help:      "Rows flagged by each exception result.",
		}, []string{"result"}),
		ruleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exception_results_total",
			Help:      "Exception results produced.",
		}, []string{"result"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs.",
		}),
		runRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_filtered_rows",
			Help:      "Rows left after filtering, per run.",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 6),
		}),
		runWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Warnings reported by pipeline stages.",
		}),
	}

	c.registry.MustRegister(
		c.stageDuration, c.ruleRows, c.ruleRuns,
		c.runs, c.runRows, c.runWarnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if active != nil {
		c.activeRuns = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Pipeline runs in progress.",
		}, active)
		c.registry.MustRegister(c.activeRuns)
	}
	return c
}

// StageCompleted records the duration of one stage.
func (c *Collector) StageCompleted(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RuleEvaluated records one exception result and its row count.
func (c *Collector) RuleEvaluated(result string, rows int) {
	c.ruleRuns.WithLabelValues(result).Inc()
	c.ruleRows.WithLabelValues(result).Add(float64(rows))
}

// RunCompleted records a finished run.
func (c *Collector) RunCompleted(rows int, warnings int) {
	c.runs.Inc()
	c.runRows.Observe(float64(rows))
	c.runWarnings.Add(float64(warnings))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
