// Package metrics exposes Prometheus metrics for reconciliation passes,
// resources, alerts and API calls.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

const namespace = "lmsync"

// Metrics implements reconcile.PassObserver, reconcile.AlertSink and
// logicmonitor.Observer on a private registry.
type Metrics struct {
	// Pass metrics
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	lastPass     prometheus.Gauge

	// Resource metrics
	resources        *prometheus.CounterVec
	resourceDuration *prometheus.HistogramVec
	alerts           *prometheus.CounterVec

	// API metrics
	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	apiErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metrics and registers them on a new registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_total",
				Help:      "Total number of reconciliation passes",
			},
			[]string{"dry_run", "result"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of reconciliation passes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"dry_run"},
		),
		lastPass: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_pass_timestamp_seconds",
				Help:      "Unix time the last pass finished",
			},
		),

		resources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_reconciled_total",
				Help:      "Total number of resource reconciliations by outcome",
			},
			[]string{"kind", "status"},
		),
		resourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resource_duration_seconds",
				Help:      "Duration of single resource reconciliation in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of alerts raised",
			},
			[]string{"kind"},
		),

		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Total number of API calls by response status",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Duration of API calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		apiErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_transport_errors_total",
				Help:      "Total number of API calls that failed before a response was decoded",
			},
			[]string{"method", "endpoint"},
		),
	}

	registry.MustRegister(
		m.passes,
		m.passDuration,
		m.lastPass,
		m.resources,
		m.resourceDuration,
		m.alerts,
		m.apiCalls,
		m.apiDuration,
		m.apiErrors,
	)

	return m
}

// ObservePass records pass and per-resource outcomes.
func (m *Metrics) ObservePass(_ context.Context, report reconcile.PassReport) {
	dryRun := strconv.FormatBool(report.DryRun)
	result := "ok"
	if report.Failed() {
		result = "failed"
	}

	m.passes.WithLabelValues(dryRun, result).Inc()
	m.passDuration.WithLabelValues(dryRun).Observe(report.Finished.Sub(report.Started).Seconds())
	m.lastPass.Set(float64(report.Finished.Unix()))

	for _, r := range report.Results {
		kind := string(r.Kind)
		if kind == "" {
			kind = "unknown"
		}
		m.resources.WithLabelValues(kind, string(r.Status)).Inc()
		if r.Duration > 0 {
			m.resourceDuration.WithLabelValues(kind).Observe(r.Duration.Seconds())
		}
	}
}

// Alert counts an alert.
func (m *Metrics) Alert(_ context.Context, a reconcile.Alert) {
	m.alerts.WithLabelValues(string(a.Resource.Kind)).Inc()
}

// ObserveCall records one API call.
func (m *Metrics) ObserveCall(method, endpoint string, status logicmonitor.Status, elapsed time.Duration, err error) {
	endpoint = EndpointLabel(endpoint)
	m.apiDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
	if err != nil {
		m.apiErrors.WithLabelValues(method, endpoint).Inc()
		return
	}
	m.apiCalls.WithLabelValues(method, endpoint, strconv.Itoa(int(status))).Inc()
}

// EndpointLabel strips the query string and replaces numeric path segments
// with ":id" to bound label cardinality.
func EndpointLabel(endpoint string) string {
	endpoint, _, _ = strings.Cut(endpoint, "?")
	segments := strings.Split(endpoint, "/")
	for i, s := range segments {
		if _, err := strconv.Atoi(s); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
