// Package metrics provides Prometheus instrumentation for the dealz server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only dealz metrics appear on the /metrics endpoint.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the dealz server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EvaluationsTotal    *prometheus.CounterVec
	ParseErrorsTotal    prometheus.Counter
	MissingStatTotal    prometheus.Counter
	ActivationsCreated  prometheus.Counter
	DuplicateAttempts   prometheus.Counter
	ActivationsExpired  prometheus.Counter
	ConditionCacheSize  prometheus.Gauge
	AuthFailuresTotal   prometheus.Counter
	PermissionDenials   prometheus.Counter
}

// New creates and registers all dealz metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealz_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealz_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealz_condition_evaluations_total",
			Help: "Total number of condition evaluations against game facts.",
		}, []string{"result"}),

		ParseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_condition_parse_errors_total",
			Help: "Total number of condition strings rejected by the parser.",
		}),

		MissingStatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_missing_stat_defaults_total",
			Help: "Total number of evaluations where a referenced stat was absent and defaulted to zero.",
		}),

		ActivationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_activations_created_total",
			Help: "Total number of activations created.",
		}),

		DuplicateAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_duplicate_activations_total",
			Help: "Total number of activation attempts that found the key already handled.",
		}),

		ActivationsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_activations_expired_total",
			Help: "Total number of activations expired by the background sweep.",
		}),

		ConditionCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealz_condition_cache_size",
			Help: "Number of compiled conditions in the in-memory cache.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_auth_failures_total",
			Help: "Total number of failed authentication attempts.",
		}),

		PermissionDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealz_permission_denials_total",
			Help: "Total number of requests denied by the permission check.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EvaluationsTotal,
		m.ParseErrorsTotal,
		m.MissingStatTotal,
		m.ActivationsCreated,
		m.DuplicateAttempts,
		m.ActivationsExpired,
		m.ConditionCacheSize,
		m.AuthFailuresTotal,
		m.PermissionDenials,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordEvaluation increments the evaluation counter with the given result.
func (m *Metrics) RecordEvaluation(result bool) {
	m.EvaluationsTotal.WithLabelValues(strconv.FormatBool(result)).Inc()
}
