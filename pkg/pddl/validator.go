package pddl

import (
	"log/slog"

	"github.com/zen-systems/plangate/pkg/artifact"
)

// DiagnosticOK is reported for an accepted document.
const DiagnosticOK = "OK"

// Validator parses planning texts and persists accepted documents.
type Validator struct {
	dir    *artifact.Dir
	logger *slog.Logger
}

// NewValidator creates a validator writing into dir.
func NewValidator(dir *artifact.Dir, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{dir: dir, logger: logger}
}

// Validate checks text and, on success, overwrites domain.pddl and
// problem.pddl with the trimmed segments. Nothing is written on failure.
func (v *Validator) Validate(text string) (bool, string) {
	if _, _, err := v.Check(text); err != nil {
		return false, err.Error()
	}
	return true, DiagnosticOK
}

// Check is Validate with typed results.
func (v *Validator) Check(text string) (*Document, *artifact.Record, error) {
	doc, err := Parse(text)
	if err != nil {
		v.logger.Debug("pddl rejected", "error", err)
		return nil, nil, err
	}
	record, err := v.dir.WriteDocuments(doc.Domain, doc.Problem)
	if err != nil {
		return nil, nil, err
	}
	v.logger.Debug("pddl accepted", "domain_hash", record.DomainHash, "problem_hash", record.ProblemHash)
	return doc, record, nil
}
