package planner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/plangate/pkg/artifact"
)

// Execution modes.
const (
	ModeDocker = "docker"
	ModeLocal  = "local"
)

// Defaults matching the downward-planner image.
const (
	DefaultImage  = "downward-planner"
	DefaultMemory = "1g"
	DefaultSearch = "astar(lmcut())"

	containerDir = "/planning"
)

// Config selects how the planner process is started.
type Config struct {
	Mode   string `yaml:"mode"`
	Image  string `yaml:"image"`
	Binary string `yaml:"binary"`
	Memory string `yaml:"memory"`
	Search string `yaml:"search"`
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeDocker
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Memory == "" {
		c.Memory = DefaultMemory
	}
	if c.Search == "" {
		c.Search = DefaultSearch
	}
	return c
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	c = c.withDefaults()
	switch c.Mode {
	case ModeDocker:
		return nil
	case ModeLocal:
		if c.Binary == "" {
			return fmt.Errorf("local planner mode requires a binary")
		}
		return nil
	default:
		return fmt.Errorf("unknown planner mode %q", c.Mode)
	}
}

// Recorder receives one observation per finished invocation.
type Recorder interface {
	ObservePlanner(kind string, duration time.Duration)
}

// Invoker runs Fast Downward against the documents in a planning directory.
// Calls on one Invoker are serialized because the artifact paths are fixed.
type Invoker struct {
	mu       sync.Mutex
	cfg      Config
	dir      *artifact.Dir
	runner   CommandRunner
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option {
	return func(i *Invoker) { i.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(i *Invoker) { i.recorder = r }
}

// NewInvoker creates an invoker for dir.
func NewInvoker(cfg Config, dir *artifact.Dir, opts ...Option) (*Invoker, error) {
	if dir == nil {
		return nil, fmt.Errorf("planning directory is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inv := &Invoker{
		cfg:    cfg.withDefaults(),
		dir:    dir,
		runner: ExecRunner{},
		logger: slog.Default(),
		tracer: otel.Tracer("plangate/planner"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Dir returns the planning directory.
func (i *Invoker) Dir() *artifact.Dir {
	return i.dir
}

// Command builds the argument vector for a domain/problem pair.
func (i *Invoker) Command(domainPath, problemPath string) []string {
	if i.cfg.Mode == ModeLocal {
		return []string{
			i.cfg.Binary,
			"--plan-file", i.dir.PlanPath(),
			domainPath,
			problemPath,
			"--search", i.cfg.Search,
		}
	}
	return []string{
		"docker", "run", "--rm",
		"--memory=" + i.cfg.Memory,
		"-v", i.dir.Path() + ":" + containerDir,
		i.cfg.Image,
		"--plan-file", containerDir + "/" + artifact.PlanFile,
		containerDir + "/" + filepath.Base(domainPath),
		containerDir + "/" + filepath.Base(problemPath),
		"--search", i.cfg.Search,
	}
}

// Invoke removes any stale plan, runs the planner and classifies the result.
// A process that cannot be started is an unrecoverable failure.
func (i *Invoker) Invoke(ctx context.Context, domainPath, problemPath string) Outcome {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, span := i.tracer.Start(ctx, "planner.Invoke",
		trace.WithAttributes(attribute.String("planner.mode", i.cfg.Mode)))
	defer span.End()

	command := i.Command(domainPath, problemPath)
	start := time.Now()
	outcome := i.run(ctx, command)
	outcome.Command = command
	outcome.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("planner.outcome", string(outcome.Kind)),
		attribute.Int("planner.exit_code", outcome.ExitCode),
	)
	if err := outcome.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if i.recorder != nil {
		i.recorder.ObservePlanner(string(outcome.Kind), outcome.Duration)
	}
	i.logger.Info("planner finished",
		"outcome", outcome.Kind,
		"exit_code", outcome.ExitCode,
		"duration", outcome.Duration)
	return outcome
}

func (i *Invoker) run(ctx context.Context, command []string) Outcome {
	if err := i.dir.RemovePlan(); err != nil {
		return Outcome{Kind: UnrecoverableFailure, Log: err.Error(), ExitCode: -1}
	}

	res, err := i.runner.Run(ctx, i.dir.Path(), command)
	if err != nil {
		return Outcome{Kind: UnrecoverableFailure, Log: err.Error(), ExitCode: -1}
	}

	plan, exists, err := i.dir.ReadPlan()
	if err != nil {
		return Outcome{Kind: UnrecoverableFailure, Log: err.Error(), ExitCode: res.ExitCode}
	}
	return Classify(res.ExitCode, plan, exists, res.Log())
}
