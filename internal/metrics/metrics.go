// Package metrics exposes Prometheus collectors for the prediction endpoints.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
)

const namespace = "rootcause"

// Outcome label values for prediction counters.
const (
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
	OutcomeServerError = "server_error"
)

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	predictions   *prometheus.CounterVec
	inference     *prometheus.HistogramVec
	substitutions *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		inference: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_seconds",
			Help:      "Time spent in model forward passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"model"}),
		substitutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_substitutions_total",
			Help:      "Unknown category values replaced by a fallback, by feature.",
		}, []string{"feature"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.predictions,
		m.inference,
		m.substitutions,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePrediction counts one finished prediction request.
func (m *Metrics) ObservePrediction(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveInference records the duration of one forward pass of model.
func (m *Metrics) ObserveInference(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.inference.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveSubstitution counts one fallback substitution.
func (m *Metrics) ObserveSubstitution(s encoder.Substitution) {
	if m == nil {
		return
	}
	m.substitutions.WithLabelValues(s.Feature).Inc()
}

// ObserveRateLimited counts one request rejected on route.
func (m *Metrics) ObserveRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
