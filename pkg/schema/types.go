package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Canonical keys of the structured stage outputs.
const (
	KeyGoals           = "goals"
	KeyRelevantObjects = "relevant_objects"
	KeyFinalActions    = "final_actions"

	KeyNecessityToUseAction = "necessity_to_use_action"
	KeyActionsToInclude     = "actions_to_include"
	KeyOutput               = "output"
)

// GoalInterpretationKeys must all be present in a goal interpretation answer.
var GoalInterpretationKeys = []string{KeyGoals, KeyRelevantObjects, KeyFinalActions}

// SubgoalDecompositionKeys must all be present in a subgoal decomposition answer.
var SubgoalDecompositionKeys = []string{KeyNecessityToUseAction, KeyActionsToInclude, KeyOutput}

// === Goal interpretation ===

// GoalInterpretation is the structured answer of the first stage.
type GoalInterpretation struct {
	Goals           []string         `json:"goals"`
	RelevantObjects []RelevantObject `json:"relevant_objects"`
	FinalActions    []FinalAction    `json:"final_actions"`
}

// RelevantObject is a scene object the goal depends on.
type RelevantObject struct {
	Name           string   `json:"name"`
	ID             Ident    `json:"id,omitempty"`
	States         []string `json:"states,omitempty"`
	PossibleStates []string `json:"possible_states,omitempty"`
}

// FinalAction is an action the goal explicitly requires.
type FinalAction struct {
	Action string `json:"action"`
	Target Ident  `json:"target"`
}

// String renders the action as ACTION(target).
func (a FinalAction) String() string {
	return fmt.Sprintf("%s(%s)", a.Action, a.Target)
}

// ObjectNames returns the names of the relevant objects in answer order.
func (g *GoalInterpretation) ObjectNames() []string {
	names := make([]string, 0, len(g.RelevantObjects))
	for _, obj := range g.RelevantObjects {
		if obj.Name != "" {
			names = append(names, obj.Name)
		}
	}
	return names
}

// === Subgoal decomposition ===

// SubgoalDecomposition is the structured answer of the second stage.
type SubgoalDecomposition struct {
	NecessityToUseAction Flag     `json:"necessity_to_use_action"`
	ActionsToInclude     []string `json:"actions_to_include"`
	Output               []string `json:"output"`
}

// === Scalars models tend to spell loosely ===

// Ident accepts either a JSON string or a JSON number.
type Ident string

func (i *Ident) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = Ident(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*i = Ident(n.String())
	return nil
}

// Flag accepts a JSON boolean or one of "yes", "no", "true", "false".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flag must be a boolean or string: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		*f = true
	case "no", "n", "":
		*f = false
	default:
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid flag %q", s)
		}
		*f = Flag(parsed)
	}
	return nil
}
