package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/flow"
	"github.com/zen-systems/plangate/pkg/message"
	"github.com/zen-systems/plangate/pkg/metrics"
	"github.com/zen-systems/plangate/pkg/repair"
	"github.com/zen-systems/plangate/pkg/tool"
)

// Runner executes stages against completion adapters and a tool dispatcher.
type Runner struct {
	adapters   map[string]adapter.Adapter
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// NewRunner creates a stage runner. cfg supplies retry and fallback
// settings and may be nil.
func NewRunner(adapters map[string]adapter.Adapter, registry *tool.Registry, dispatcher *tool.Dispatcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		adapters:   adapters,
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("plangate/pipeline"),
	}
}

// StageResult captures the outcome of one stage.
type StageResult struct {
	Name       string
	Decision   flow.Decision
	Iterations int
	// Final is the message the terminal decision was taken on.
	Final message.Message
	// Output and Object hold the last assistant answer, stripped and decoded.
	Output   string
	Object   map[string]any
	Calls    []adapter.CallReport
	Usage    adapter.Usage
	Duration time.Duration
	// Err explains a Fail the terminator did not produce.
	Err error
}

// RunStage drives one stage until its terminator succeeds or fails, or the
// iteration budget is spent. Only context cancellation and setup problems
// are returned as errors; every other failure is a Fail decision.
func (r *Runner) RunStage(ctx context.Context, st *State, spec StageSpec) (*StageResult, error) {
	if st == nil || st.Conversation == nil {
		return nil, fmt.Errorf("pipeline state is required")
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("stage name is required")
	}
	if spec.Terminator == nil {
		return nil, fmt.Errorf("stage %s has no terminator", spec.Name)
	}
	if spec.MaxIterations < 1 {
		return nil, fmt.Errorf("stage %s: max iterations must be positive", spec.Name)
	}
	if _, ok := r.adapters[spec.Target.Adapter]; !ok {
		return nil, fmt.Errorf("adapter %s not found", spec.Target.Adapter)
	}
	tools, err := r.registry.Specs(spec.Tools...)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
	}

	ctx, span := r.tracer.Start(ctx, "pipeline.RunStage", trace.WithAttributes(
		attribute.String("stage.name", spec.Name),
		attribute.String("stage.adapter", spec.Target.Adapter),
		attribute.String("stage.model", spec.Target.Model),
	))
	defer span.End()

	start := time.Now()
	result := &StageResult{Name: spec.Name}
	logger := r.logger.With("stage", spec.Name)
	logger.Info("stage started", "adapter", spec.Target.Adapter, "model", spec.Target.Model, "max_iterations", spec.MaxIterations)

	r.appendMessage(st, spec.Name, message.System(spec.SystemPrompt))
	if spec.Kickoff != "" {
		r.appendMessage(st, spec.Name, message.User(spec.Kickoff))
	}

	var lastOutput string
	for iteration := 1; iteration <= spec.MaxIterations; iteration++ {
		result.Iterations = iteration
		st.Attempts[spec.Name] = iteration
		r.metrics.ObserveIteration(spec.Name)

		req := adapter.Request{
			Messages:    st.Conversation.Stage(spec.Name),
			Tools:       tools,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
		}
		callStart := time.Now()
		resp, reports, err := callAdapterWithPolicy(ctx, r.adapters, spec.Target, req, r.cfg)
		result.Calls = append(result.Calls, reports...)
		for _, report := range reports {
			result.Usage = addUsage(result.Usage, report.Usage)
			var reportErr error
			if report.Error != "" {
				reportErr = fmt.Errorf("%s", report.Error)
			}
			r.metrics.ObserveCompletion(report.Adapter, report.Model, report.Usage.PromptTokens, report.Usage.CompletionTokens, time.Since(callStart), reportErr)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				span.SetStatus(codes.Error, ctxErr.Error())
				return result, ctxErr
			}
			logger.Warn("completion failed", "iteration", iteration, "error", err)
			result.Decision = flow.FailWith(ReasonAdapterError)
			result.Err = fmt.Errorf("stage %s adapter error: %w", spec.Name, err)
			break
		}

		msg := resp.Message
		msg.Role = message.RoleAssistant
		r.appendMessage(st, spec.Name, msg)

		if msg.HasToolCalls() {
			// Results are judged in call order. Calls after a terminal result
			// are not executed.
			var decision flow.Decision
			var final message.Message
			dispatched := 0
			for _, call := range msg.ToolCalls {
				toolMsg := r.dispatch(ctx, spec, call)
				r.appendMessage(st, spec.Name, toolMsg)
				dispatched++
				if d := flow.Evaluate(spec.Terminator, flow.Observe(toolMsg)); d.Terminal() {
					decision, final = d, toolMsg
					break
				}
			}
			logger.Debug("tool round finished", "iteration", iteration, "calls", len(msg.ToolCalls), "dispatched", dispatched, "decision", decision.Verdict, "reason", decision.Reason)
			if decision.Terminal() {
				result.Decision = decision
				result.Final = final
				break
			}
			continue
		}

		obs := flow.Observe(msg)
		result.Output, result.Object = obs.Text, obs.Object
		decision := flow.Evaluate(spec.Terminator, obs)
		if decision.Verdict == flow.Success && spec.Validate != nil {
			if err := spec.Validate(obs.Object); err != nil {
				decision = flow.ContinueWith(ReasonInvalidOutput)
			}
		}
		logger.Debug("answer evaluated", "iteration", iteration, "decision", decision.Verdict, "reason", decision.Reason)
		if decision.Terminal() {
			result.Decision = decision
			result.Final = msg
			break
		}

		if feedback := r.feedback(spec, obs, lastOutput); feedback != "" && iteration < spec.MaxIterations {
			r.appendMessage(st, spec.Name, message.User(feedback))
		}
		lastOutput = obs.Text
	}

	if !result.Decision.Terminal() && result.Err == nil {
		result.Decision = flow.FailWith(ReasonMaxIterations)
		result.Err = fmt.Errorf("stage %s: %w after %d iterations", spec.Name, ErrIterationBudgetExceeded, result.Iterations)
	}
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("stage.iterations", result.Iterations),
		attribute.String("stage.decision", result.Decision.Verdict.String()),
		attribute.String("stage.reason", result.Decision.Reason),
	)
	if result.Decision.Verdict == flow.Fail {
		span.SetStatus(codes.Error, result.Decision.Reason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.metrics.ObserveStage(spec.Name, result.Decision.Verdict.String(), result.Decision.Reason)
	logger.Info("stage finished",
		"decision", result.Decision.Verdict,
		"reason", result.Decision.Reason,
		"iterations", result.Iterations,
		"duration", result.Duration,
	)
	return result, nil
}

func (r *Runner) appendMessage(st *State, stage string, msg message.Message) {
	msg.Stage = stage
	st.Conversation.Append(msg)
}

// dispatch answers one tool call. Tools the stage does not offer are
// reported as unknown without reaching the dispatcher.
func (r *Runner) dispatch(ctx context.Context, spec StageSpec, call message.ToolCall) message.Message {
	if !spec.allows(call.Name) {
		r.metrics.ObserveTool(call.Name, string(tool.UnknownTool))
		return message.ToolResult(call, (&tool.DispatchError{Tool: call.Name, Kind: tool.UnknownTool}).Error())
	}
	return r.dispatcher.DispatchCall(ctx, call)
}

// feedback builds the user message that follows a rejected plain answer,
// or "" when the stage sends none.
func (r *Runner) feedback(spec StageSpec, obs flow.Observation, previous string) string {
	if !spec.RepairFeedback || len(spec.RequiredKeys) == 0 {
		return spec.Nudge
	}
	if previous != "" && previous == obs.Text {
		return repair.GenerateEscalationPrompt(obs.Text, spec.RequiredKeys)
	}
	missing, err := flow.MissingKeys(obs, spec.RequiredKeys...)
	if len(missing) == 0 && err == nil && spec.Validate != nil {
		err = spec.Validate(obs.Object)
	}
	return repair.GenerateRepairPrompt(obs.Text, err, missing, spec.RequiredKeys)
}
