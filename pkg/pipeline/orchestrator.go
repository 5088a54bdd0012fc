package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/evidence"
	"github.com/zen-systems/plangate/pkg/flow"
	"github.com/zen-systems/plangate/pkg/message"
	"github.com/zen-systems/plangate/pkg/metrics"
	"github.com/zen-systems/plangate/pkg/pddl"
	"github.com/zen-systems/plangate/pkg/planner"
	"github.com/zen-systems/plangate/pkg/prompt"
	"github.com/zen-systems/plangate/pkg/scene"
	"github.com/zen-systems/plangate/pkg/schema"
	"github.com/zen-systems/plangate/pkg/tool"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Scene summary limits for the goal interpretation prompt.
const (
	summaryObjects   = 20
	summaryRelations = 20
)

// Options configures an Orchestrator. Adapters, Fixtures and Planner are
// required; everything else has a usable default.
type Options struct {
	Adapters  map[string]adapter.Adapter
	Config    *config.Config
	Aliases   *config.ModelAliases
	Manifest  *Manifest
	Fixtures  *scene.FixtureStore
	Resources *scene.Resources
	Prompts   *prompt.Renderer
	// Planner runs in the planning directory the validator writes to.
	Planner       *planner.Invoker
	PlannerBudget int
	// EvidenceDir receives one bundle per run; empty disables evidence.
	EvidenceDir string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Result is the answer of one run.
type Result struct {
	RunID       string
	Status      string
	Plan        string
	Message     string
	Reason      string
	Stage       string
	Subgoals    []string
	EvidenceDir string
}

// Orchestrator composes goal interpretation, subgoal decomposition and
// action sequencing into one run.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewOrchestrator validates opts and creates an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("no adapters configured")
	}
	if opts.Fixtures == nil {
		return nil, fmt.Errorf("fixture store is required")
	}
	if opts.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if opts.Config == nil {
		opts.Config = config.Default()
		if len(opts.Adapters) == 1 {
			for name := range opts.Adapters {
				opts.Config.Model.Adapter = name
			}
		}
	}
	if opts.Manifest == nil {
		opts.Manifest = DefaultManifest()
	}
	if err := opts.Manifest.Validate([]string{tool.FindObjectName, tool.GetRelationsName, tool.PlanFromPDDLName}); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if opts.Resources == nil {
		opts.Resources = &scene.Resources{}
	}
	if opts.Prompts == nil {
		renderer, err := prompt.New("")
		if err != nil {
			return nil, err
		}
		opts.Prompts = renderer
	}
	if opts.PlannerBudget <= 0 {
		opts.PlannerBudget = tool.DefaultPlannerBudget
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, logger: logger, tracer: otel.Tracer("plangate/pipeline")}, nil
}

// run holds what one Run call builds.
type run struct {
	id       string
	task     *scene.Task
	state    *State
	runner   *Runner
	writer   *evidence.Writer
	logger   *slog.Logger
	maxIters int

	mu          sync.Mutex
	attempts    int
	lastOutcome *planner.Outcome
}

// Run executes the three stages for taskID. maxIterations, when positive,
// overrides the configured per-stage iteration limits. A returned error
// means the run could not be carried out; a failed plan is a Result with
// StatusFail.
func (o *Orchestrator) Run(ctx context.Context, taskID string, maxIterations int) (*Result, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	r, err := o.prepare(taskID, maxIterations)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("run.id", r.id))

	result, err := o.execute(ctx, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.RunID = r.id
	if r.writer != nil {
		result.EvidenceDir = r.writer.RunDir()
		if err := r.writer.WriteResult(evidence.ResultRecord{
			Status:         result.Status,
			Stage:          result.Stage,
			Reason:         result.Reason,
			Message:        result.Message,
			Plan:           result.Plan,
			DurationMillis: time.Since(start).Milliseconds(),
		}); err != nil {
			return nil, fmt.Errorf("write result evidence: %w", err)
		}
	}

	o.opts.Metrics.ObserveRun(result.Status)
	span.SetAttributes(attribute.String("run.status", result.Status))
	if result.Status == StatusFail {
		span.SetStatus(codes.Error, result.Reason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.logger.Info("run finished", "status", result.Status, "stage", result.Stage, "reason", result.Reason, "duration", time.Since(start))
	return result, nil
}

func (o *Orchestrator) prepare(taskID string, maxIterations int) (*run, error) {
	task, err := o.opts.Fixtures.Load(taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	graph := o.opts.Resources.AttachPossibleStates(task.Graph)

	r := &run{
		id:       evidence.NewRunID(),
		task:     task,
		state:    NewState(graph),
		maxIters: maxIterations,
	}
	r.logger = o.logger.With("run_id", r.id, "task_id", task.ID)

	if o.opts.EvidenceDir != "" {
		writer, err := evidence.NewWriter(o.opts.EvidenceDir, r.id)
		if err != nil {
			return nil, err
		}
		r.writer = writer
		if err := writer.WriteRun(evidence.RunRecord{
			ID:           r.id,
			Timestamp:    time.Now().UTC(),
			TaskID:       task.ID,
			Task:         task.Description,
			GraphFile:    task.GraphFile,
			Adapter:      o.opts.Config.Model.Adapter,
			Model:        o.opts.Aliases.Resolve(o.opts.Config.Model.Model),
			PlanningDir:  o.opts.Planner.Dir().Path(),
			ToolVersions: map[string]string{"go": runtime.Version()},
		}); err != nil {
			return nil, fmt.Errorf("write run evidence: %w", err)
		}
	}

	validator := pddl.NewValidator(o.opts.Planner.Dir(), r.logger)
	registry, err := tool.NewRegistry(
		tool.FindObject{},
		tool.GetRelations{},
		tool.NewPlanFromPDDL(validator, o.opts.Planner, r.observePlan),
	)
	if err != nil {
		return nil, err
	}
	dispatcher := tool.NewDispatcher(registry, graph, o.opts.Resources,
		tool.WithBudget(tool.PlanFromPDDLName, o.opts.PlannerBudget),
		tool.WithLogger(r.logger),
		tool.WithRecorder(o.opts.Metrics),
	)
	r.runner = NewRunner(o.opts.Adapters, registry, dispatcher, o.opts.Config, r.logger, o.opts.Metrics)
	return r, nil
}

// observePlan records every planning tool call that reached the validator.
func (r *run) observePlan(attempt tool.PlanAttempt) {
	r.mu.Lock()
	r.attempts++
	n := r.attempts
	if attempt.Outcome != nil {
		outcome := *attempt.Outcome
		r.lastOutcome = &outcome
	}
	r.mu.Unlock()

	if r.writer == nil {
		return
	}
	record := evidence.PlannerRecord{Attempt: n, PDDL: attempt.Text, Diagnostic: attempt.Diagnostic}
	if attempt.Outcome != nil {
		record.Command = attempt.Outcome.Command
		record.Outcome = string(attempt.Outcome.Kind)
		record.ExitCode = attempt.Outcome.ExitCode
		record.Log = attempt.Outcome.Log
		record.Duration = attempt.Outcome.Duration
	}
	if err := r.writer.WritePlannerAttempt(record); err != nil {
		r.logger.Warn("failed to write planner evidence", "attempt", n, "error", err)
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Result, error) {
	machine := flow.NewMachine(config.Stages...)
	r.logger.Info("run started", "task", firstLine(r.task.Description))

	// Goal interpretation.
	giSpec, err := o.goalInterpretationSpec(r)
	if err != nil {
		return nil, err
	}
	res, stop, err := o.runStage(ctx, r, machine, giSpec)
	if err != nil || stop != nil {
		return stop, err
	}
	gi, err := schema.DecodeGoalInterpretation(res.Object)
	if err != nil {
		return nil, fmt.Errorf("decode goal interpretation: %w", err)
	}

	// Subgoal decomposition.
	sdSpec, err := o.subgoalDecompositionSpec(r, gi)
	if err != nil {
		return nil, err
	}
	res, stop, err = o.runStage(ctx, r, machine, sdSpec)
	if err != nil || stop != nil {
		return stop, err
	}
	sd, err := schema.DecodeSubgoalDecomposition(res.Object)
	if err != nil {
		return nil, fmt.Errorf("decode subgoal decomposition: %w", err)
	}
	subgoals := schema.ParseSubgoals(sd, false)
	if len(subgoals) == 0 {
		r.logger.Warn("decomposition produced no subgoals, planning for the goals directly")
		subgoals = gi.Goals
	}
	if err := r.state.SetSubgoals(subgoals); err != nil {
		return nil, err
	}

	// Action sequencing.
	asSpec, err := o.actionSequencingSpec(r, gi)
	if err != nil {
		return nil, err
	}
	res, stop, err = o.runStage(ctx, r, machine, asSpec)
	if err != nil || stop != nil {
		return stop, err
	}

	if state := machine.State(); state.Phase != flow.PhaseSuccess {
		return nil, fmt.Errorf("run ended in state %s", state)
	}
	plan := r.plan()
	if plan == "" {
		plan = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(res.Final.Content), strings.TrimSpace(planner.SuccessPrefix)))
	}
	return &Result{
		Status:   StatusSuccess,
		Plan:     plan,
		Message:  "plan found",
		Reason:   res.Decision.Reason,
		Stage:    config.StageActionSequencing,
		Subgoals: r.state.Subgoals(),
	}, nil
}

// runStage runs one stage and advances the machine. stop is non-nil when
// the stage failed and the run must end with it.
func (o *Orchestrator) runStage(ctx context.Context, r *run, machine *flow.Machine, spec StageSpec) (*StageResult, *Result, error) {
	res, err := r.runner.RunStage(ctx, r.state, spec)
	if res != nil {
		o.writeStage(r, spec, res)
	}
	if err != nil {
		return nil, nil, err
	}

	state, err := machine.Advance(res.Decision)
	if err != nil {
		return nil, nil, err
	}
	if state.Phase != flow.PhaseFail {
		return res, nil, nil
	}

	stop := &Result{
		Status:   StatusFail,
		Reason:   res.Decision.Reason,
		Stage:    spec.Name,
		Subgoals: r.state.Subgoals(),
		Message:  fmt.Sprintf("stage %s failed: %s", spec.Name, res.Decision.Reason),
	}
	switch {
	case res.Err != nil:
		stop.Message = res.Err.Error()
	case res.Final.Role == message.RoleTool:
		stop.Message = strings.TrimSpace(res.Final.Content)
	}
	return res, stop, nil
}

func (o *Orchestrator) writeStage(r *run, spec StageSpec, res *StageResult) {
	if r.writer == nil {
		return
	}
	record := evidence.StageRecord{
		Name:           spec.Name,
		Adapter:        spec.Target.Adapter,
		Model:          spec.Target.Model,
		Iterations:     res.Iterations,
		Decision:       res.Decision.Verdict.String(),
		Reason:         res.Decision.Reason,
		Output:         res.Output,
		Messages:       r.state.Conversation.Stage(spec.Name),
		Calls:          res.Calls,
		DurationMillis: res.Duration.Milliseconds(),
	}
	if err := r.writer.WriteStage(record); err != nil {
		r.logger.Warn("failed to write stage evidence", "stage", spec.Name, "error", err)
	}
}

// plan returns the plan of the last successful planner call.
func (r *run) plan() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastOutcome != nil && r.lastOutcome.Kind == planner.Success {
		return r.lastOutcome.Plan
	}
	return ""
}

func (o *Orchestrator) baseSpec(r *run, name string) StageSpec {
	route := o.opts.Config.Route(name, o.opts.Aliases, r.maxIters)
	manifest := o.opts.Manifest.Stage(name)
	maxIterations := route.MaxIterations
	if manifest.MaxIterations > 0 && r.maxIters <= 0 {
		maxIterations = manifest.MaxIterations
	}
	return StageSpec{
		Name:           name,
		Tools:          manifest.Tools,
		MaxIterations:  maxIterations,
		RepairFeedback: manifest.Repair(),
		Target:         route.Target,
		MaxTokens:      route.MaxTokens,
		Temperature:    route.Temperature,
	}
}

func (o *Orchestrator) goalInterpretationSpec(r *run) (StageSpec, error) {
	res := o.opts.Resources
	summary := scene.Summarize(r.state.Scene, res, summaryObjects, summaryRelations)
	system, err := o.opts.Prompts.Render(prompt.GoalInterpretation, prompt.GoalInterpretationData{
		Task:          r.task.Description,
		Objects:       summary.Objects,
		Relations:     summary.Relations,
		RelationTypes: res.RenderRelationTypes(),
		ActionSpace:   res.RenderActionSpace(),
	})
	if err != nil {
		return StageSpec{}, err
	}

	spec := o.baseSpec(r, config.StageGoalInterpretation)
	spec.SystemPrompt = system
	spec.Kickoff = "Interpret this task:\n" + r.task.Description
	spec.RequiredKeys = schema.GoalInterpretationKeys
	spec.Terminator = flow.RequiredKeys(schema.GoalInterpretationKeys...)
	spec.Validate = func(obj map[string]any) error {
		_, err := schema.DecodeGoalInterpretation(obj)
		return err
	}
	return spec, nil
}

func (o *Orchestrator) subgoalDecompositionSpec(r *run, gi *schema.GoalInterpretation) (StageSpec, error) {
	res := o.opts.Resources
	names := gi.ObjectNames()
	initial := scene.InitialStates(r.state.Scene, res, names)

	finalActions := make([]string, 0, len(gi.FinalActions))
	for _, action := range gi.FinalActions {
		finalActions = append(finalActions, action.String())
	}

	system, err := o.opts.Prompts.Render(prompt.SubgoalDecomposition, prompt.SubgoalDecompositionData{
		Task:            r.task.Description,
		Goals:           strings.Join(gi.Goals, "\n"),
		RelevantObjects: strings.Join(names, ", "),
		InitialStates:   initial.Text,
		FinalActions:    strings.Join(finalActions, ", "),
		SeenObjects:     initial.SeenList(),
		RelationTypes:   res.RenderRelationTypes(),
		ActionSpace:     res.RenderActionSpace(),
		Necessity:       len(finalActions) > 0,
	})
	if err != nil {
		return StageSpec{}, err
	}

	spec := o.baseSpec(r, config.StageSubgoalDecomposition)
	spec.SystemPrompt = system
	spec.Kickoff = "Decompose the goal into subgoals."
	spec.RequiredKeys = schema.SubgoalDecompositionKeys
	spec.Terminator = flow.RequiredKeys(schema.SubgoalDecompositionKeys...)
	spec.Validate = func(obj map[string]any) error {
		_, err := schema.DecodeSubgoalDecomposition(obj)
		return err
	}
	return spec, nil
}

func (o *Orchestrator) actionSequencingSpec(r *run, gi *schema.GoalInterpretation) (StageSpec, error) {
	res := o.opts.Resources
	names := gi.ObjectNames()
	initial := scene.InitialStates(r.state.Scene, res, names)

	system, err := o.opts.Prompts.Render(prompt.ActionSequencing, prompt.ActionSequencingData{
		RelevantObjects: strings.Join(names, ", "),
		InitialStates:   initial.Text,
		RelationTypes:   res.RenderRelationTypes(),
		ActionSpace:     res.RenderActionSpace(),
		Subgoals:        strings.Join(r.state.Subgoals(), "\n"),
		Sentinel:        flow.DefaultSentinel,
		PlannerBudget:   o.opts.PlannerBudget,
	})
	if err != nil {
		return StageSpec{}, err
	}

	spec := o.baseSpec(r, config.StageActionSequencing)
	spec.SystemPrompt = system
	spec.Kickoff = "Write the PDDL and call " + tool.PlanFromPDDLName + "."
	spec.Terminator = flow.PlanningTerminator(tool.PlanFromPDDLName, flow.DefaultSentinel)
	spec.Nudge = "Call " + tool.PlanFromPDDLName + " with the domain and problem, or answer with " + flow.DefaultSentinel + "."
	return spec, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
