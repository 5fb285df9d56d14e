package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fundchain"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type executorMetrics struct {
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	sequence prometheus.Gauge
	sinkErrs *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	executorMetricsOnce sync.Once
	executorRegistry    *executorMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per module and method.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module, method = orUnknown(module), orUnknown(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(orUnknown(module), reason).Inc()
}

// Executor returns the registry tracking atomic state calls.
func Executor() *executorMetrics {
	executorMetricsOnce.Do(func() {
		executorRegistry = &executorMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "calls_total",
				Help:      "State calls segmented by call name and outcome (committed or reverted).",
			}, []string{"call", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "call_duration_seconds",
				Help:      "Time spent holding the executor lock per call.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"call"}),
			sequence: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "event_sequence",
				Help:      "Sequence number of the last committed event.",
			}),
			sinkErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "sink_errors_total",
				Help:      "Failures publishing committed events to a sink.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(
			executorRegistry.calls,
			executorRegistry.latency,
			executorRegistry.sequence,
			executorRegistry.sinkErrs,
		)
	})
	return executorRegistry
}

// ObserveCall records a finished executor call.
func (m *executorMetrics) ObserveCall(call string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	call = orUnknown(call)
	outcome := "committed"
	if err != nil {
		outcome = "reverted"
	}
	m.calls.WithLabelValues(call, outcome).Inc()
	m.latency.WithLabelValues(call).Observe(duration.Seconds())
}

// SetSequence updates the committed event sequence gauge.
func (m *executorMetrics) SetSequence(seq uint64) {
	if m == nil {
		return
	}
	m.sequence.Set(float64(seq))
}

// RecordSinkError counts a failed publish to the named sink.
func (m *executorMetrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrs.WithLabelValues(orUnknown(sink)).Inc()
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
