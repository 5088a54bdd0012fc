package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/message"
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	TaskID       string            `json:"task_id"`
	Task         string            `json:"task,omitempty"`
	GraphFile    string            `json:"graph_file,omitempty"`
	Adapter      string            `json:"adapter"`
	Model        string            `json:"model"`
	PlanningDir  string            `json:"planning_dir"`
	ToolVersions map[string]string `json:"tool_versions,omitempty"`
}

// StageRecord captures evidence for a single stage.
type StageRecord struct {
	Name           string               `json:"name"`
	Adapter        string               `json:"adapter"`
	Model          string               `json:"model"`
	Iterations     int                  `json:"iterations"`
	Decision       string               `json:"decision"`
	Reason         string               `json:"reason,omitempty"`
	Output         string               `json:"output,omitempty"`
	Messages       []message.Message    `json:"messages,omitempty"`
	Calls          []adapter.CallReport `json:"calls,omitempty"`
	DurationMillis int64                `json:"duration_ms"`
}

// PlannerRecord captures one planning tool call.
type PlannerRecord struct {
	Attempt    int
	PDDL       string
	Diagnostic string
	Command    []string
	Outcome    string
	ExitCode   int
	Log        string
	Duration   time.Duration
}

// ResultRecord captures the final answer of a run.
type ResultRecord struct {
	Status         string `json:"status"`
	Stage          string `json:"stage,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
	Plan           string `json:"plan,omitempty"`
	DurationMillis int64  `json:"duration_ms"`
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewRunID returns a fresh, sortable run identifier.
func NewRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run ID %q", runID)
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "stages"), filepath.Join(runDir, "planner")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create evidence directory: %w", err)
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// ID returns the run identifier.
func (w *Writer) ID() string {
	return filepath.Base(w.runDir)
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteStage writes a stage record to stages/<stage>.json.
func (w *Writer) WriteStage(record StageRecord) error {
	if record.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	return writeJSON(filepath.Join(w.runDir, "stages", record.Name+".json"), record)
}

// WritePlannerAttempt writes planner/attempt-<n>.log.
func (w *Writer) WritePlannerAttempt(record PlannerRecord) error {
	if record.Attempt < 1 {
		return fmt.Errorf("attempt number must be positive")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "attempt: %d\n", record.Attempt)
	fmt.Fprintf(&sb, "diagnostic: %s\n", record.Diagnostic)
	if len(record.Command) > 0 {
		fmt.Fprintf(&sb, "command: %s\n", strings.Join(record.Command, " "))
		fmt.Fprintf(&sb, "exit: %d\n", record.ExitCode)
		fmt.Fprintf(&sb, "duration: %s\n", record.Duration)
	}
	if record.Outcome != "" {
		fmt.Fprintf(&sb, "outcome: %s\n", record.Outcome)
	}
	fmt.Fprintf(&sb, "\npddl:\n%s\n", record.PDDL)
	if record.Log != "" {
		fmt.Fprintf(&sb, "\nlog:\n%s\n", record.Log)
	}
	path := filepath.Join(w.runDir, "planner", fmt.Sprintf("attempt-%d.log", record.Attempt))
	return os.WriteFile(path, []byte(sb.String()), 0o600)
}

// WriteResult writes the run result to result.json.
func (w *Writer) WriteResult(record ResultRecord) error {
	return writeJSON(filepath.Join(w.runDir, "result.json"), record)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
