package evidence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/plangate/pkg/message"
)

func TestEvidenceWriter(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-123")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if writer.ID() != "run-123" {
		t.Fatalf("unexpected id %q", writer.ID())
	}

	run := RunRecord{
		ID:          "run-123",
		Timestamp:   time.Now().UTC(),
		TaskID:      "0",
		Adapter:     "mock",
		Model:       "mock-1",
		PlanningDir: dir,
	}
	if err := writer.WriteRun(run); err != nil {
		t.Fatalf("write run: %v", err)
	}

	stage := StageRecord{
		Name:       "goal_interpretation",
		Adapter:    "mock",
		Model:      "mock-1",
		Iterations: 2,
		Decision:   "success",
		Messages:   []message.Message{message.User("Watch TV")},
	}
	if err := writer.WriteStage(stage); err != nil {
		t.Fatalf("write stage: %v", err)
	}
	if err := writer.WritePlannerAttempt(PlannerRecord{Attempt: 1, PDDL: "(define)", Diagnostic: "OK", Command: []string{"docker", "run"}, ExitCode: 12, Log: "unsolvable"}); err != nil {
		t.Fatalf("write planner attempt: %v", err)
	}
	if err := writer.WriteResult(ResultRecord{Status: "fail", Stage: "action_sequencing", Reason: "planner_failed"}); err != nil {
		t.Fatalf("write result: %v", err)
	}

	for _, rel := range []string{"run.json", "stages/goal_interpretation.json", "planner/attempt-1.log", "result.json"} {
		if _, err := os.Stat(filepath.Join(writer.RunDir(), filepath.FromSlash(rel))); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(writer.RunDir(), "stages", "goal_interpretation.json"))
	if err != nil {
		t.Fatalf("read stage: %v", err)
	}
	var decoded StageRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode stage: %v", err)
	}
	if decoded.Iterations != 2 || len(decoded.Messages) != 1 || decoded.Messages[0].Content != "Watch TV" {
		t.Fatalf("unexpected stage record: %+v", decoded)
	}

	logData, err := os.ReadFile(filepath.Join(writer.RunDir(), "planner", "attempt-1.log"))
	if err != nil {
		t.Fatalf("read planner log: %v", err)
	}
	if !strings.Contains(string(logData), "exit: 12") || !strings.Contains(string(logData), "unsolvable") {
		t.Fatalf("unexpected planner log:\n%s", logData)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, writer.RunDir(), 0o700)
		assertPerm(t, filepath.Join(writer.RunDir(), "stages"), 0o700)
		assertPerm(t, filepath.Join(writer.RunDir(), "planner"), 0o700)
		assertPerm(t, filepath.Join(writer.RunDir(), "run.json"), 0o600)
		assertPerm(t, filepath.Join(writer.RunDir(), "planner", "attempt-1.log"), 0o600)
	}
}

func TestNewWriterRejectsBadInput(t *testing.T) {
	if _, err := NewWriter("", "run"); err == nil {
		t.Fatalf("expected error for empty base dir")
	}
	if _, err := NewWriter(t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty run id")
	}
	if _, err := NewWriter(t.TempDir(), "../escape"); err == nil {
		t.Fatalf("expected error for run id with separator")
	}
}

func TestPlannerAttemptNumberMustBePositive(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), "run")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.WritePlannerAttempt(PlannerRecord{}); err == nil {
		t.Fatalf("expected error for attempt 0")
	}
}

func TestNewRunIDIsUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatalf("expected distinct run ids, got %q twice", a)
	}
}

func assertPerm(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if got := info.Mode().Perm(); got != want {
		t.Fatalf("%s: expected perm %o, got %o", path, want, got)
	}
}
