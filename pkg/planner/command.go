package planner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// CommandResult captures a finished process.
type CommandResult struct {
	Command  []string      `json:"command"`
	Workdir  string        `json:"workdir,omitempty"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Log returns stderr, falling back to stdout.
func (r *CommandResult) Log() string {
	if r == nil {
		return ""
	}
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// CommandRunner starts a process and waits for it. A non-zero exit status is
// reported through CommandResult.ExitCode; the error is reserved for
// processes that could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, workdir string, command []string) (*CommandResult, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes command and captures its output.
func (ExecRunner) Run(ctx context.Context, workdir string, command []string) (*CommandResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	if workdir != "" {
		cmd.Dir = workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("planner failed to run: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &CommandResult{
		Command:  append([]string{}, command...),
		Workdir:  workdir,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}
