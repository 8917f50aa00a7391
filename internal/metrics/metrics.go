// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors for the control plane. A nil *Metrics is
// valid and disables collection, so callers never need to guard.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	limiterAllowed   *prometheus.CounterVec
	limiterDenied    *prometheus.CounterVec
	commandsExecuted prometheus.Counter
}

// New builds a registry with all service collectors. queueDepth and the
// token funcs feed gauges sampled at scrape time.
func New(queueDepth func() float64, ingressTokens, executionTokens func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcc_requests_total",
			Help: "Dispatched requests by method, path and status code.",
		}, []string{"method", "path", "code"}),
		limiterAllowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcc_ratelimit_allowed_total",
			Help: "Token bucket admissions by limiter.",
		}, []string{"limiter"}),
		limiterDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcc_ratelimit_denied_total",
			Help: "Token bucket rejections by limiter.",
		}, []string{"limiter"}),
		commandsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcc_commands_executed_total",
			Help: "Drive commands executed by the queue worker.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.limiterAllowed,
		m.limiterDenied,
		m.commandsExecuted,
	)
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dcc_queue_depth",
		Help: "Queued-but-unstarted drive commands.",
	}, queueDepth))

	// Both gauges share one metric name, so Help must be identical: the
	// registry hashes help text into the descriptor identity.
	const tokensHelp = "Tokens currently available in the bucket, by limiter."
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "dcc_ratelimit_tokens",
		Help:        tokensHelp,
		ConstLabels: prometheus.Labels{"limiter": "ingress"},
	}, ingressTokens))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "dcc_ratelimit_tokens",
		Help:        tokensHelp,
		ConstLabels: prometheus.Labels{"limiter": "execution"},
	}, executionTokens))

	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts one dispatched request.
func (m *Metrics) ObserveRequest(method, path string, code int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
}

// LimiterAllowed counts one admission for the named limiter.
func (m *Metrics) LimiterAllowed(limiter string) {
	if m == nil {
		return
	}
	m.limiterAllowed.WithLabelValues(limiter).Inc()
}

// LimiterDenied counts one rejection for the named limiter.
func (m *Metrics) LimiterDenied(limiter string) {
	if m == nil {
		return
	}
	m.limiterDenied.WithLabelValues(limiter).Inc()
}

// CommandExecuted counts one executed drive command. Satisfies the queue's
// Observer contract.
func (m *Metrics) CommandExecuted() {
	if m == nil {
		return
	}
	m.commandsExecuted.Inc()
}
