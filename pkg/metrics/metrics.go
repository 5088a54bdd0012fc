// Package metrics collects run, stage, tool and planner counters in a
// dedicated Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRuns              = "plangate_runs_total"
	MetricStageIterations   = "plangate_stage_iterations_total"
	MetricStageOutcomes     = "plangate_stage_outcomes_total"
	MetricCompletions       = "plangate_completions_total"
	MetricTokens            = "plangate_completion_tokens_total"
	MetricToolCalls         = "plangate_tool_calls_total"
	MetricPlannerOutcomes   = "plangate_planner_outcomes_total"
	MetricPlannerDuration   = "plangate_planner_duration_seconds"
	MetricCompletionLatency = "plangate_completion_duration_seconds"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	stageIterations   *prometheus.CounterVec
	stageOutcomes     *prometheus.CounterVec
	completions       *prometheus.CounterVec
	tokens            *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	toolCalls         *prometheus.CounterVec
	plannerOutcomes   *prometheus.CounterVec
	plannerDuration   prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRuns,
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		stageIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStageIterations,
			Help: "Completion iterations spent per stage.",
		}, []string{"stage"}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStageOutcomes,
			Help: "Stage results by decision and reason.",
		}, []string{"stage", "decision", "reason"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCompletions,
			Help: "Completion calls by adapter, model and result.",
		}, []string{"adapter", "model", "result"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTokens,
			Help: "Tokens reported by completion providers.",
		}, []string{"adapter", "model", "kind"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricCompletionLatency,
			Help:    "Completion call latency including retries.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"adapter"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricToolCalls,
			Help: "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"}),
		plannerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPlannerOutcomes,
			Help: "Planner invocations by outcome kind.",
		}, []string{"kind"}),
		plannerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPlannerDuration,
			Help:    "Wall time of planner invocations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	m.registry.MustRegister(
		m.runs,
		m.stageIterations,
		m.stageOutcomes,
		m.completions,
		m.tokens,
		m.completionLatency,
		m.toolCalls,
		m.plannerOutcomes,
		m.plannerDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// ObserveIteration counts one completion iteration of a stage.
func (m *Metrics) ObserveIteration(stage string) {
	if m == nil {
		return
	}
	m.stageIterations.WithLabelValues(stage).Inc()
}

// ObserveStage counts a finished stage.
func (m *Metrics) ObserveStage(stage, decision, reason string) {
	if m == nil {
		return
	}
	m.stageOutcomes.WithLabelValues(stage, decision, reason).Inc()
}

// ObserveCompletion records one completion call.
func (m *Metrics) ObserveCompletion(adapterName, model string, promptTokens, completionTokens int, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.completions.WithLabelValues(adapterName, model, result).Inc()
	m.completionLatency.WithLabelValues(adapterName).Observe(d.Seconds())
	if promptTokens > 0 {
		m.tokens.WithLabelValues(adapterName, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokens.WithLabelValues(adapterName, model, "completion").Add(float64(completionTokens))
	}
}

// ObserveTool counts a tool dispatch.
func (m *Metrics) ObserveTool(name, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(name, outcome).Inc()
}

// ObservePlanner records a planner invocation.
func (m *Metrics) ObservePlanner(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.plannerOutcomes.WithLabelValues(kind).Inc()
	m.plannerDuration.Observe(d.Seconds())
}

// WriteTextfile writes the current values in the text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
