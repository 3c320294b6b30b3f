// Package metrics exposes Prometheus instruments for guard outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/llm-guardrails/internal/guardrails"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	GuardRequests      *prometheus.CounterVec
	GuardDuration      *prometheus.HistogramVec
	InjectionMatches   *prometheus.CounterVec
	InjectionScore     prometheus.Histogram
	PIIRedactions      *prometheus.CounterVec
	BiasMatches        *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	RateLimited        prometheus.Counter
	WebSocketClients   prometheus.Gauge
	PipelineReloads    *prometheus.CounterVec
	UnresolvedRestores prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the instruments with reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		GuardRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_requests_total",
			Help:      "Guard calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		GuardDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guard_duration_seconds",
			Help:      "Time spent in a guard stage.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"stage"}),
		InjectionMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injection_rule_matches_total",
			Help:      "Injection rule matches by rule id.",
		}, []string{"rule"}),
		InjectionScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "injection_score",
			Help:      "Aggregate injection score of checked inputs.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		PIIRedactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_redactions_total",
			Help:      "Redacted PII occurrences by entity type.",
		}, []string{"entity_type"}),
		BiasMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bias_rule_matches_total",
			Help:      "Bias signal matches by rule id.",
		}, []string{"rule"}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_violations_total",
			Help:      "Output validation violations by kind.",
		}, []string{"kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard clients.",
		}),
		PipelineReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_reloads_total",
			Help:      "Configuration reloads by result.",
		}, []string{"result"}),
		UnresolvedRestores: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_placeholders_total",
			Help:      "Placeholders in model output that the mapping could not restore.",
		}),
		gatherer: reg,
	}
}

// ObservePreProcess records one input-stage call
func (m *Metrics) ObservePreProcess(pre guardrails.PreProcessResult, d time.Duration) {
	outcome := "allowed"
	if pre.Blocked {
		outcome = "blocked"
	}
	m.GuardRequests.WithLabelValues("input", outcome).Inc()
	m.GuardDuration.WithLabelValues("input").Observe(d.Seconds())
	m.InjectionScore.Observe(pre.Injection.Score)

	for _, rule := range pre.Injection.MatchedRules {
		m.InjectionMatches.WithLabelValues(rule).Inc()
	}
	for _, f := range pre.PIIFindings {
		m.PIIRedactions.WithLabelValues(f.EntityType).Add(float64(f.Count))
	}
}

// ObservePostProcess records one output-stage call
func (m *Metrics) ObservePostProcess(post guardrails.PostProcessResult, d time.Duration) {
	outcome := "valid"
	if !post.Validation.IsValid {
		outcome = "invalid"
	}
	m.GuardRequests.WithLabelValues("output", outcome).Inc()
	m.GuardDuration.WithLabelValues("output").Observe(d.Seconds())

	for _, v := range post.Validation.Violations {
		m.ValidationFailures.WithLabelValues(v.Kind).Inc()
	}
	for _, rule := range post.Bias.MatchedRules {
		m.BiasMatches.WithLabelValues(rule).Inc()
	}
	m.UnresolvedRestores.Add(float64(len(post.UnresolvedPlaceholders)))
}

// ObserveHTTP records a completed HTTP request
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveReload records a configuration reload attempt
func (m *Metrics) ObserveReload(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.PipelineReloads.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
