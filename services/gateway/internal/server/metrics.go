package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	generationsTotal    *prometheus.CounterVec
	authAttemptsTotal   *prometheus.CounterVec
	rateLimitedTotal    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindseye_gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mindseye_gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "route"},
		),
		generationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindseye_gateway_generations_total",
				Help: "Generation requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		authAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindseye_gateway_auth_attempts_total",
				Help: "Login and registration attempts by outcome",
			},
			[]string{"action", "outcome"},
		),
		rateLimitedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mindseye_gateway_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
	}
}

func (m *metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
