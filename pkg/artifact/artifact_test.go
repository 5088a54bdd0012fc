package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDocumentsOverwrites(t *testing.T) {
	dir, err := NewDir(filepath.Join(t.TempDir(), "planning"))
	if err != nil {
		t.Fatalf("NewDir error: %v", err)
	}

	first, err := dir.WriteDocuments("(define (domain a))", "(define (problem a))")
	if err != nil {
		t.Fatalf("WriteDocuments error: %v", err)
	}
	second, err := dir.WriteDocuments("(define (domain b))", "(define (problem b))")
	if err != nil {
		t.Fatalf("WriteDocuments error: %v", err)
	}
	if first.DomainHash == second.DomainHash {
		t.Fatalf("expected domain hash to change")
	}

	data, err := os.ReadFile(dir.DomainPath())
	if err != nil {
		t.Fatalf("read domain: %v", err)
	}
	if string(data) != "(define (domain b))" {
		t.Fatalf("unexpected domain content %q", data)
	}
}

func TestPlanLifecycle(t *testing.T) {
	dir, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir error: %v", err)
	}

	if err := dir.RemovePlan(); err != nil {
		t.Fatalf("RemovePlan on missing file: %v", err)
	}
	if _, ok, err := dir.ReadPlan(); err != nil || ok {
		t.Fatalf("expected no plan, got ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(dir.PlanPath(), []byte("(walk a b)\n"), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	plan, ok, err := dir.ReadPlan()
	if err != nil || !ok || plan != "(walk a b)\n" {
		t.Fatalf("unexpected plan %q ok=%v err=%v", plan, ok, err)
	}

	if err := dir.RemovePlan(); err != nil {
		t.Fatalf("RemovePlan error: %v", err)
	}
	if _, err := os.Stat(dir.PlanPath()); !os.IsNotExist(err) {
		t.Fatalf("expected plan to be removed, stat err=%v", err)
	}
}

func TestNewDirRequiresPath(t *testing.T) {
	if _, err := NewDir(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
