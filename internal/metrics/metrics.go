package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the taskhub server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// One-time code metrics.
	CodesRequestedTotal     *prometheus.CounterVec
	CodeVerificationsTotal  *prometheus.CounterVec
	NotifierDeliveriesTotal *prometheus.CounterVec
	NotifierDuration        prometheus.Histogram

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	RateLimitRejectionsTotal *prometheus.CounterVec

	// Janitor metrics.
	JanitorSweepsTotal  *prometheus.CounterVec
	JanitorRemovedTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		CodesRequestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_codes_requested_total",
			Help: "Verification code requests by channel and result.",
		}, []string{"channel", "result"}),

		CodeVerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_code_verifications_total",
			Help: "Verification attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),

		NotifierDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_notifier_deliveries_total",
			Help: "Code deliveries by channel and result.",
		}, []string{"channel", "result"}),

		NotifierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskhub_notifier_duration_seconds",
			Help:    "Duration of notifier sends in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_auth_failures_total",
			Help: "Total number of credential resolution failures.",
		}, []string{"reason"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_auth_successes_total",
			Help: "Total number of issued session credentials.",
		}, []string{"token_mode"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"limiter_type"}),

		JanitorSweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_janitor_sweeps_total",
			Help: "Total number of expired-code sweeps.",
		}, []string{"status"}),

		JanitorRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_janitor_removed_codes_total",
			Help: "Total number of expired codes removed by the janitor.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskhub_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CodesRequestedTotal,
		m.CodeVerificationsTotal,
		m.NotifierDeliveriesTotal,
		m.NotifierDuration,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.RateLimitRejectionsTotal,
		m.JanitorSweepsTotal,
		m.JanitorRemovedTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, fmt.Sprintf("%d", statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncCodeRequested counts a code request. result is "issued", "rate_limited" or "invalid".
func (m *Metrics) IncCodeRequested(channel, result string) {
	m.CodesRequestedTotal.WithLabelValues(channel, result).Inc()
}

// IncCodeVerification counts a verification attempt by outcome code.
func (m *Metrics) IncCodeVerification(channel, outcome string) {
	m.CodeVerificationsTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveDelivery records a notifier send.
func (m *Metrics) ObserveDelivery(channel string, delivered bool, seconds float64) {
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.NotifierDeliveriesTotal.WithLabelValues(channel, result).Inc()
	m.NotifierDuration.Observe(seconds)
}

// IncAuthFailure increments the auth failure counter for the given reason.
func (m *Metrics) IncAuthFailure(reason string) {
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// IncAuthSuccess increments the issued-credential counter.
func (m *Metrics) IncAuthSuccess(tokenMode string) {
	m.AuthSuccessesTotal.WithLabelValues(tokenMode).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(limiterType string) {
	m.RateLimitRejectionsTotal.WithLabelValues(limiterType).Inc()
}

// ObserveSweep records a janitor pass.
func (m *Metrics) ObserveSweep(removed int64, err error) {
	if err != nil {
		m.JanitorSweepsTotal.WithLabelValues("error").Inc()
		return
	}
	m.JanitorSweepsTotal.WithLabelValues("ok").Inc()
	m.JanitorRemovedTotal.Add(float64(removed))
}
