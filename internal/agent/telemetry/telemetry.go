package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry collects pipeline metrics on a private prometheus registry.
// A nil *Telemetry is valid and records nothing, so callers never branch.
type Telemetry struct {
	registry *prometheus.Registry

	turnsTotal      prometheus.Counter
	turnDuration    prometheus.Histogram
	toolInvocations *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
}

// New builds a telemetry instance with all collectors registered.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		registry: reg,
		turnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Completed conversation turns.",
		}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "End-to-end turn latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_tool_invocations_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_stage_failures_total",
			Help: "Recovered pipeline stage failures.",
		}, []string{"stage"}),
	}
	reg.MustRegister(t.turnsTotal, t.turnDuration, t.toolInvocations, t.stageFailures)
	return t
}

// TurnCompleted records one finished turn and its latency.
func (t *Telemetry) TurnCompleted(d time.Duration) {
	if t == nil {
		return
	}
	t.turnsTotal.Inc()
	t.turnDuration.Observe(d.Seconds())
}

// ToolInvocation records one tool call with outcome "success" or "failure".
func (t *Telemetry) ToolInvocation(tool, outcome string) {
	if t == nil {
		return
	}
	t.toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// StageFailure records a recovered failure in one of the pipeline stages.
func (t *Telemetry) StageFailure(stage string) {
	if t == nil {
		return
	}
	t.stageFailures.WithLabelValues(stage).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
