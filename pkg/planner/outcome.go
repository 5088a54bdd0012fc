package planner

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the classified result of a planner run.
type Kind string

const (
	Success               Kind = "success"
	PartialSuccess        Kind = "partial_success"
	UnsolvableProven      Kind = "unsolvable"
	ResourceLimitExceeded Kind = "resource_limit"
	UnrecoverableFailure  Kind = "unrecoverable"
)

// Tool result texts, one per outcome kind.
const (
	SuccessPrefix       = "Success: "
	partialSuccessText  = "Partly successful termination: at least one plan was found and another component ran out of memory."
	unsolvableText      = "Unsuccessful, but error-free termination: task is unsolvable."
	resourceLimitText   = "Expected failures which prevent the execution of further components: OOM / Timeout."
	unrecoverablePrefix = "Unrecoverable failure: "
)

// Outcome is the classified result of one planner invocation.
type Outcome struct {
	Kind     Kind          `json:"kind"`
	Plan     string        `json:"plan,omitempty"`
	Log      string        `json:"log,omitempty"`
	ExitCode int           `json:"exit_code"`
	Command  []string      `json:"command,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Classify maps a Fast Downward exit code onto an outcome. A zero exit code
// only counts as success when the plan file was produced.
func Classify(exitCode int, plan string, planExists bool, log string) Outcome {
	switch {
	case exitCode == 0 && planExists:
		return Outcome{Kind: Success, Plan: strings.TrimSpace(plan), ExitCode: exitCode}
	case exitCode >= 1 && exitCode < 10:
		return Outcome{Kind: PartialSuccess, Log: log, ExitCode: exitCode}
	case exitCode >= 10 && exitCode < 20:
		return Outcome{Kind: UnsolvableProven, Log: log, ExitCode: exitCode}
	case exitCode >= 20 && exitCode < 30:
		return Outcome{Kind: ResourceLimitExceeded, Log: log, ExitCode: exitCode}
	default:
		return Outcome{Kind: UnrecoverableFailure, Log: log, ExitCode: exitCode}
	}
}

// Text renders the outcome as the planning tool's result.
func (o Outcome) Text() string {
	switch o.Kind {
	case Success:
		return SuccessPrefix + o.Plan
	case PartialSuccess:
		return partialSuccessText
	case UnsolvableProven:
		return unsolvableText
	case ResourceLimitExceeded:
		return resourceLimitText
	default:
		return unrecoverablePrefix + o.Log
	}
}

// Err returns nil for a successful outcome and a *ProcessError otherwise.
func (o Outcome) Err() error {
	if o.Kind == Success {
		return nil
	}
	return &ProcessError{Kind: o.Kind, ExitCode: o.ExitCode, Log: o.Log}
}

// ProcessError reports a planner run that did not produce a plan.
type ProcessError struct {
	Kind     Kind
	ExitCode int
	Log      string
}

func (e *ProcessError) Error() string {
	if e == nil {
		return "planner error"
	}
	return fmt.Sprintf("planner %s (exit code %d)", e.Kind, e.ExitCode)
}
