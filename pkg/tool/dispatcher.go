package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/plangate/pkg/message"
	"github.com/zen-systems/plangate/pkg/scene"
)

// DefaultPlannerBudget is how many times one run may call the planning tool.
const DefaultPlannerBudget = 3

// Recorder receives one observation per dispatched call.
type Recorder interface {
	ObserveTool(name, outcome string)
}

// Dispatcher runs tool calls for one pipeline run. It owns the scene the
// tools see and the per-tool call budgets.
type Dispatcher struct {
	mu        sync.Mutex
	registry  *Registry
	scene     *scene.Graph
	resources *scene.Resources
	budgets   map[string]int
	calls     map[string]int
	logger    *slog.Logger
	recorder  Recorder
	tracer    trace.Tracer
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBudget limits how often the named tool may run. Later calls are refused.
func WithBudget(name string, limit int) DispatcherOption {
	return func(d *Dispatcher) { d.budgets[name] = limit }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher bound to one scene. The planning tool
// gets DefaultPlannerBudget unless overridden.
func NewDispatcher(registry *Registry, g *scene.Graph, res *scene.Resources, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		scene:     g,
		resources: res,
		budgets:   map[string]int{PlanFromPDDLName: DefaultPlannerBudget},
		calls:     map[string]int{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("plangate/tool"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Calls returns how many times the named tool was requested.
func (d *Dispatcher) Calls(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

// Dispatch runs a tool and returns its result text. Failures are rendered
// as text too; they never end the stage.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []byte) string {
	result, err := d.Invoke(ctx, name, args)
	if err != nil {
		return err.Error()
	}
	return result
}

// DispatchCall answers one model tool call with a tool-result message.
func (d *Dispatcher) DispatchCall(ctx context.Context, call message.ToolCall) message.Message {
	return message.ToolResult(call, d.Dispatch(ctx, call.Name, call.Arguments))
}

// Invoke is Dispatch with a typed error.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args []byte) (string, error) {
	ctx, span := d.tracer.Start(ctx, "tool.Dispatch", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	result, err := d.invoke(ctx, name, args)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		var dispatchErr *DispatchError
		if errors.As(err, &dispatchErr) {
			outcome = string(dispatchErr.Kind)
		}
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if d.recorder != nil {
		d.recorder.ObserveTool(name, outcome)
	}
	d.logger.Debug("tool dispatched", "tool", name, "outcome", outcome)
	return result, err
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args []byte) (string, error) {
	t, ok := d.registry.Get(name)
	if !ok {
		return "", &DispatchError{Tool: name, Kind: UnknownTool}
	}

	d.mu.Lock()
	d.calls[name]++
	count := d.calls[name]
	limit, limited := d.budgets[name]
	d.mu.Unlock()
	if limited && count > limit {
		d.logger.Warn("tool budget exhausted", "tool", name, "limit", limit, "call", count)
		return "", &DispatchError{Tool: name, Kind: BudgetExhausted, Limit: limit}
	}

	clean, err := sanitize(name, t.Parameters(), args)
	if err != nil {
		return "", err
	}

	result, err := t.Call(ctx, Call{Args: clean, Scene: d.scene, Resources: d.resources})
	if err != nil {
		return "", &DispatchError{Tool: name, Kind: HandlerFailed, Err: err}
	}
	return result, nil
}

// sanitize copies the declared arguments into a fresh document, coercing
// integers along the way. Undeclared keys never reach the handler.
func sanitize(name string, schema Schema, args []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(args))) == 0 {
		args = []byte("{}")
	}
	if !gjson.ValidBytes(args) || !gjson.ParseBytes(args).IsObject() {
		return nil, &DispatchError{Tool: name, Kind: InvalidArgument, Err: fmt.Errorf("expected a JSON object")}
	}

	clean := []byte("{}")
	for _, p := range schema.Params {
		value := gjson.GetBytes(args, gjson.Escape(p.Name))
		if !value.Exists() || value.Type == gjson.Null {
			if p.Required {
				return nil, &DispatchError{Tool: name, Kind: InvalidArgument, Param: p.Name, Err: fmt.Errorf("missing required argument")}
			}
			continue
		}

		var coerced any
		var err error
		switch p.Type {
		case TypeInteger:
			coerced, err = coerceInt(value)
		default:
			coerced, err = coerceString(value)
		}
		if err != nil {
			return nil, &DispatchError{Tool: name, Kind: InvalidArgument, Param: p.Name, Err: err}
		}

		clean, err = sjson.SetBytes(clean, p.Name, coerced)
		if err != nil {
			return nil, &DispatchError{Tool: name, Kind: InvalidArgument, Param: p.Name, Err: err}
		}
	}
	return clean, nil
}

// maxExactInt is the largest magnitude a float64 holds without losing integer precision.
const maxExactInt = 1 << 53

func coerceInt(value gjson.Result) (int64, error) {
	switch value.Type {
	case gjson.Number:
		if value.Num != math.Trunc(value.Num) {
			return 0, fmt.Errorf("%s is not an integer", value.Raw)
		}
		if math.Abs(value.Num) > maxExactInt {
			return 0, fmt.Errorf("%s is out of range", value.Raw)
		}
		return int64(value.Num), nil
	case gjson.String:
		s := strings.TrimSpace(value.Str)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%q is not an integer", value.Str)
		}
		if math.IsInf(f, 0) || math.Abs(f) > maxExactInt {
			return 0, fmt.Errorf("%q is out of range", value.Str)
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%q is not an integer", value.Str)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %s", value.Type)
	}
}

func coerceString(value gjson.Result) (string, error) {
	switch value.Type {
	case gjson.String:
		return value.Str, nil
	case gjson.Number, gjson.True, gjson.False:
		return value.Raw, nil
	default:
		return "", fmt.Errorf("expected a string, got %s", value.Type)
	}
}
