package pddl

import (
	"fmt"
	"strings"
)

// Block markers separating the two documents in one tool argument.
const (
	DomainMarker  = "=== domain.pddl ==="
	ProblemMarker = "=== problem.pddl ==="
)

// Block names used in diagnostics.
const (
	BlockDomain  = "domain"
	BlockProblem = "problem"
)

// ErrorKind classifies a syntax failure.
type ErrorKind string

const (
	MissingBlock     ErrorKind = "missing_block"
	DuplicateBlock   ErrorKind = "duplicate_block"
	MisplacedBlock   ErrorKind = "misplaced_block"
	UnbalancedParens ErrorKind = "unbalanced_parens"
)

// SyntaxError describes why a planning text was rejected. Its message is the
// diagnostic handed back to the model.
type SyntaxError struct {
	Kind  ErrorKind
	Block string
	Open  int
	Close int
}

func (e *SyntaxError) Error() string {
	if e == nil {
		return "pddl syntax error"
	}
	switch e.Kind {
	case MissingBlock:
		return fmt.Sprintf("Missing %s.pddl", e.Block)
	case DuplicateBlock:
		return fmt.Sprintf("Duplicate %s.pddl", e.Block)
	case MisplacedBlock:
		return "Could not locate PDDL blocks"
	case UnbalancedParens:
		return fmt.Sprintf("%s PDDL has unbalanced parentheses. Open: %d, Close: %d",
			blockTitle(e.Block), e.Open, e.Close)
	default:
		return "pddl syntax error"
	}
}

func blockTitle(block string) string {
	if block == "" {
		return block
	}
	return strings.ToUpper(block[:1]) + block[1:]
}

// Document is a parsed domain/problem pair.
type Document struct {
	Domain  string
	Problem string
}

// Parse splits text into its domain and problem segments. Checks run in a
// fixed order and stop at the first failure:
//
//  1. the domain marker appears exactly once
//  2. the problem marker appears exactly once
//  3. the domain segment has as many "(" as ")"
//  4. the problem segment has as many "(" as ")"
//
// Anything after the problem marker belongs to the problem segment, including
// trailing prose.
func Parse(text string) (*Document, error) {
	if err := checkMarker(text, DomainMarker, BlockDomain); err != nil {
		return nil, err
	}
	if err := checkMarker(text, ProblemMarker, BlockProblem); err != nil {
		return nil, err
	}

	domainStart := strings.Index(text, DomainMarker) + len(DomainMarker)
	problemAt := strings.Index(text, ProblemMarker)
	if problemAt < domainStart {
		return nil, &SyntaxError{Kind: MisplacedBlock}
	}

	doc := &Document{
		Domain:  strings.TrimSpace(text[domainStart:problemAt]),
		Problem: strings.TrimSpace(text[problemAt+len(ProblemMarker):]),
	}
	if err := checkBalance(doc.Domain, BlockDomain); err != nil {
		return nil, err
	}
	if err := checkBalance(doc.Problem, BlockProblem); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkMarker(text, marker, block string) error {
	switch strings.Count(text, marker) {
	case 0:
		return &SyntaxError{Kind: MissingBlock, Block: block}
	case 1:
		return nil
	default:
		return &SyntaxError{Kind: DuplicateBlock, Block: block}
	}
}

func checkBalance(segment, block string) error {
	open := strings.Count(segment, "(")
	closed := strings.Count(segment, ")")
	if open != closed {
		return &SyntaxError{Kind: UnbalancedParens, Block: block, Open: open, Close: closed}
	}
	return nil
}
