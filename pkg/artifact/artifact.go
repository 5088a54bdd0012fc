package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Fixed file names inside the planning directory.
const (
	DomainFile  = "domain.pddl"
	ProblemFile = "problem.pddl"
	PlanFile    = "plan.pddl"
)

// Dir is the planning directory shared by the validator and the planner.
type Dir struct {
	path string
}

// Record describes one pair of documents written to the directory.
type Record struct {
	DomainHash  string    `json:"domain_hash"`
	ProblemHash string    `json:"problem_hash"`
	WrittenAt   time.Time `json:"written_at"`
}

// NewDir creates the planning directory if needed.
func NewDir(path string) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("planning directory is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve planning directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create planning directory: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string { return d.path }

// DomainPath returns the path of domain.pddl.
func (d *Dir) DomainPath() string { return filepath.Join(d.path, DomainFile) }

// ProblemPath returns the path of problem.pddl.
func (d *Dir) ProblemPath() string { return filepath.Join(d.path, ProblemFile) }

// PlanPath returns the path of plan.pddl.
func (d *Dir) PlanPath() string { return filepath.Join(d.path, PlanFile) }

// WriteDocuments overwrites domain.pddl and problem.pddl.
func (d *Dir) WriteDocuments(domain, problem string) (*Record, error) {
	if err := os.WriteFile(d.DomainPath(), []byte(domain), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", DomainFile, err)
	}
	if err := os.WriteFile(d.ProblemPath(), []byte(problem), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", ProblemFile, err)
	}
	return &Record{
		DomainHash:  hash(domain),
		ProblemHash: hash(problem),
		WrittenAt:   time.Now().UTC(),
	}, nil
}

// RemovePlan deletes a plan left over from an earlier invocation.
func (d *Dir) RemovePlan() error {
	err := os.Remove(d.PlanPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale plan: %w", err)
	}
	return nil
}

// ReadPlan returns the plan file content, reporting whether it exists.
func (d *Dir) ReadPlan() (string, bool, error) {
	data, err := os.ReadFile(d.PlanPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read plan: %w", err)
	}
	return string(data), true, nil
}

func hash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])[:16]
}
