package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	wireEventsTotal   *prometheus.CounterVec
	streamEventsTotal *prometheus.CounterVec
	streamOutcome     *prometheus.CounterVec

	requestAttemptsTotal *prometheus.CounterVec
	requestDuration      prometheus.Histogram
	retriesTotal         *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	tokensTotal  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			wireEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_wire_events_total",
					Help: "Server-sent frames seen by the parser by wire type and outcome (mapped, ignored, unknown).",
				},
				[]string{"type", "outcome"},
			),
			streamEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_stream_events_total",
					Help: "Typed events pushed into response streams by kind.",
				},
				[]string{"kind"},
			),
			streamOutcome: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_stream_outcome_total",
					Help: "Terminal stream states (completed, failed, aborted).",
				},
				[]string{"state"},
			),
			requestAttemptsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_request_attempts_total",
					Help: "HTTP attempts against the responses endpoint by status class.",
				},
				[]string{"status"},
			),
			requestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "turnstream_request_duration_seconds",
					Help:    "Time until response headers arrived.",
					Buckets: prometheus.DefBuckets,
				},
			),
			retriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_retries_total",
					Help: "Retries by layer (transport, turn) and error kind.",
				},
				[]string{"layer", "kind"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turnstream_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_turn_total",
					Help: "Total turns by model and final state.",
				},
				[]string{"model", "state"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turnstream_turn_duration_seconds",
					Help:    "Turn duration in seconds by model.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model"},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turnstream_tokens_total",
					Help: "Tokens reported by the provider by model and type.",
				},
				[]string{"model", "type"},
			),
		}

		prometheus.MustRegister(
			m.wireEventsTotal,
			m.streamEventsTotal,
			m.streamOutcome,
			m.requestAttemptsTotal,
			m.requestDuration,
			m.retriesTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.turnTotal,
			m.turnDuration,
			m.tokensTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordWireEvent counts a decoded frame; outcome is "mapped", "ignored" or "unknown"
func RecordWireEvent(wireType, outcome string) {
	m := getMetrics()
	m.wireEventsTotal.WithLabelValues(wireType, outcome).Inc()
}

func RecordStreamEvent(kind string) {
	m := getMetrics()
	m.streamEventsTotal.WithLabelValues(kind).Inc()
}

func RecordStreamOutcome(state string) {
	m := getMetrics()
	m.streamOutcome.WithLabelValues(state).Inc()
}

// RecordRequestAttempt counts an HTTP attempt. status 0 means the request never got a response.
func RecordRequestAttempt(status int, duration time.Duration) {
	m := getMetrics()
	m.requestAttemptsTotal.WithLabelValues(statusClass(status)).Inc()
	if status > 0 {
		m.requestDuration.Observe(duration.Seconds())
	}
}

func RecordRetry(layer, kind string) {
	m := getMetrics()
	m.retriesTotal.WithLabelValues(layer, kind).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordTurn(model, state string, duration time.Duration) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(model, state).Inc()
	m.turnDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func RecordTokens(model string, input, cached, output, reasoning int64) {
	m := getMetrics()
	addTokens(m.tokensTotal.WithLabelValues(model, "input"), input)
	addTokens(m.tokensTotal.WithLabelValues(model, "cached_input"), cached)
	addTokens(m.tokensTotal.WithLabelValues(model, "output"), output)
	addTokens(m.tokensTotal.WithLabelValues(model, "reasoning_output"), reasoning)
}

// Counter.Add panics on negative values
func addTokens(c prometheus.Counter, n int64) {
	if n > 0 {
		c.Add(float64(n))
	}
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "transport_error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status == http.StatusTooManyRequests:
		return "429"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
