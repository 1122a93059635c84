package client

import (
	"errors"
	"strconv"
	"time"

	"github.com/adamwoolhether/courier/client/pool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "courier"

// metrics holds the client's Prometheus collectors. A nil *metrics
// records nothing.
type metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	redirects   prometheus.Counter
	authRetries prometheus.Counter
	failures    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, p func() *pool.Pool) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Completed logical requests by method, final status and protocol",
			},
			[]string{"method", "status", "protocol"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Logical request latency including redirects and the auth retry",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "requests_in_flight",
				Help:      "Logical requests currently being processed",
			},
		),
		redirects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "redirects_total",
				Help:      "Redirect hops followed",
			},
		),
		authRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_retries_total",
				Help:      "Requests retried with credentials after a 401",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "failures_total",
				Help:      "Failed logical requests by error kind",
			},
			[]string{"kind"},
		),
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.redirects, err = register(reg, m.redirects); err != nil {
		return nil, err
	}
	if m.authRetries, err = register(reg, m.authRetries); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}

	queued := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pool_queued_requests",
			Help:      "Async requests waiting for a pool worker",
		},
		func() float64 { return float64(p().Stats().Queued) },
	)
	if _, err := register[prometheus.Collector](reg, queued); err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := errors.AsType[prometheus.AlreadyRegisteredError](err); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}

	return c, nil
}

func (m *metrics) start() func() {
	if m == nil {
		return func() {}
	}

	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *metrics) observe(method string, status int, proto string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(method, strconv.Itoa(status), proto).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *metrics) redirect() {
	if m != nil {
		m.redirects.Inc()
	}
}

func (m *metrics) authRetry() {
	if m != nil {
		m.authRetries.Inc()
	}
}

func (m *metrics) failure(err error) {
	if m != nil {
		m.failures.WithLabelValues(errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTooManyRedirects):
		return "too_many_redirects"
	case errors.Is(err, ErrTLS):
		return "tls"
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "other"
	}
}
