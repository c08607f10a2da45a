package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "brhist"

// Run outcomes.
const (
	RunOK      = "ok"
	RunSkipped = "skipped"
	RunFailed  = "failed"
)

// Metrics holds the collectors of the updater.
type Metrics struct {
	registry *prometheus.Registry

	Rows        *prometheus.GaugeVec
	Fetched     *prometheus.CounterVec
	LastSuccess *prometheus.GaugeVec
	Errors      *prometheus.CounterVec
	MirrorErrs  *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Runs        *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows stored in the dataset after the last update.",
		}, []string{"dataset"}),
		Fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_fetched_rows_total",
			Help:      "Rows fetched from providers.",
		}, []string{"dataset"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful update.",
		}, []string{"dataset"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_update_errors_total",
			Help:      "Failed dataset updates.",
		}, []string{"dataset"}),
		MirrorErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_mirror_errors_total",
			Help:      "Updates saved to disk but not mirrored to the database.",
		}, []string{"dataset"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_update_duration_seconds",
			Help:      "Time spent fetching, merging and saving a dataset.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"dataset"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Update runs by outcome.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Rows, m.Fetched, m.LastSuccess, m.Errors, m.MirrorErrs, m.Duration, m.Runs,
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSuccess records a completed dataset update.
func (m *Metrics) ObserveSuccess(dataset string, fetched, total int, d time.Duration, at time.Time) {
	m.Rows.WithLabelValues(dataset).Set(float64(total))
	m.Fetched.WithLabelValues(dataset).Add(float64(fetched))
	m.LastSuccess.WithLabelValues(dataset).Set(float64(at.Unix()))
	m.Duration.WithLabelValues(dataset).Observe(d.Seconds())
}

// ObserveFailure records a failed dataset update.
func (m *Metrics) ObserveFailure(dataset string, d time.Duration) {
	m.Errors.WithLabelValues(dataset).Inc()
	m.Duration.WithLabelValues(dataset).Observe(d.Seconds())
}

// ObserveMirrorFailure records rows that were saved but not mirrored.
func (m *Metrics) ObserveMirrorFailure(dataset string) {
	m.MirrorErrs.WithLabelValues(dataset).Inc()
}

// ObserveRun records the outcome of a whole run.
func (m *Metrics) ObserveRun(status string) {
	m.Runs.WithLabelValues(status).Inc()
}

// Push sends the registry to a Pushgateway under job, grouped by instance.
func (m *Metrics) Push(ctx context.Context, url, job, instance string) error {
	p := push.New(url, job).Gatherer(m.registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
