package tool

import (
	"context"
	"fmt"

	"github.com/zen-systems/plangate/pkg/pddl"
	"github.com/zen-systems/plangate/pkg/planner"
	"github.com/zen-systems/plangate/pkg/scene"
)

// Built-in tool names.
const (
	FindObjectName   = "find_object"
	GetRelationsName = "get_relations"
	PlanFromPDDLName = "plan_from_pddl"
)

// ParseErrorPrefix precedes validator diagnostics in the planning tool result.
const ParseErrorPrefix = "PDDL parsing error: "

// FindObject looks objects up in the scene by class name or synonym.
type FindObject struct{}

func (FindObject) Name() string { return FindObjectName }

func (FindObject) Description() string {
	return "Search the scene for an object by name (synonyms accepted). " +
		"Returns the object id, its current and possible states and its properties. " +
		"Only pass object_name; the scene is supplied automatically."
}

func (FindObject) Parameters() Schema {
	return Schema{Params: []Param{
		{Name: "object_name", Type: TypeString, Description: "Class name of the object, e.g. fridge", Required: true},
	}}
}

func (FindObject) Call(_ context.Context, call Call) (string, error) {
	if call.Scene == nil {
		return "", fmt.Errorf("no scene loaded")
	}
	return scene.FindObject(call.Scene, call.Resources, call.String("object_name")), nil
}

// GetRelations lists the relations an object takes part in.
type GetRelations struct{}

func (GetRelations) Name() string { return GetRelationsName }

func (GetRelations) Description() string {
	return "List every relation involving the object with the given id, one per line. " +
		"Only pass object_id; the scene is supplied automatically."
}

func (GetRelations) Parameters() Schema {
	return Schema{Params: []Param{
		{Name: "object_id", Type: TypeInteger, Description: "Numeric object id as returned by find_object", Required: true},
	}}
}

func (GetRelations) Call(_ context.Context, call Call) (string, error) {
	if call.Scene == nil {
		return "", fmt.Errorf("no scene loaded")
	}
	return scene.Relations(call.Scene, call.Int("object_id")), nil
}

// PlanAttempt is reported after every planning tool call that reached the validator.
type PlanAttempt struct {
	Text       string
	Diagnostic string
	Outcome    *planner.Outcome
}

// PlanFromPDDL validates a domain/problem pair and runs the planner on it.
type PlanFromPDDL struct {
	validator *pddl.Validator
	invoker   *planner.Invoker
	observe   func(PlanAttempt)
}

// NewPlanFromPDDL creates the planning tool. observe may be nil.
func NewPlanFromPDDL(validator *pddl.Validator, invoker *planner.Invoker, observe func(PlanAttempt)) *PlanFromPDDL {
	return &PlanFromPDDL{validator: validator, invoker: invoker, observe: observe}
}

func (p *PlanFromPDDL) Name() string { return PlanFromPDDLName }

func (p *PlanFromPDDL) Description() string {
	return "Validate a PDDL domain and problem and run the optimal planner on them. " +
		"Returns the plan on success, otherwise the parser or planner error. " +
		"The text must contain both blocks:\n" +
		pddl.DomainMarker + "\n(define (domain ...))\n" +
		pddl.ProblemMarker + "\n(define (problem ...))"
}

func (p *PlanFromPDDL) Parameters() Schema {
	return Schema{Params: []Param{
		{Name: "pddl_text", Type: TypeString, Description: "Both PDDL documents, each preceded by its marker line", Required: true},
	}}
}

func (p *PlanFromPDDL) Call(ctx context.Context, call Call) (string, error) {
	text := call.String("pddl_text")
	if _, _, err := p.validator.Check(text); err != nil {
		p.report(PlanAttempt{Text: text, Diagnostic: err.Error()})
		return ParseErrorPrefix + err.Error(), nil
	}

	dir := p.invoker.Dir()
	outcome := p.invoker.Invoke(ctx, dir.DomainPath(), dir.ProblemPath())
	p.report(PlanAttempt{Text: text, Diagnostic: pddl.DiagnosticOK, Outcome: &outcome})
	return outcome.Text(), nil
}

func (p *PlanFromPDDL) report(attempt PlanAttempt) {
	if p.observe != nil {
		p.observe(attempt)
	}
}
