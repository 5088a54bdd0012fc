package flow

import (
	"errors"
	"strings"

	"github.com/zen-systems/plangate/pkg/message"
	"github.com/zen-systems/plangate/pkg/schema"
)

// Decision reasons.
const (
	ReasonToolResult         = "tool_result"
	ReasonInvalidJSON        = "invalid_json"
	ReasonMissingKeys        = "missing_keys"
	ReasonValidOutput        = "valid_output"
	ReasonPlanFound          = "plan_found"
	ReasonPlannerFailed      = "planner_failed"
	ReasonDeclaredInfeasible = "declared_infeasible"
	ReasonAwaitingPlan       = "awaiting_plan"
)

// DefaultSentinel is the marker a model emits to give up on planning.
const DefaultSentinel = "__plan_unsolvable__"

// RequiredKeys succeeds once the assistant answers with a JSON object holding
// every key. Alias spellings are normalized before the check.
func RequiredKeys(keys ...string) Terminator {
	return TerminatorFunc(func(obs Observation) Decision {
		if obs.Message.Role != message.RoleAssistant {
			return ContinueWith(ReasonToolResult)
		}
		if obs.DecodeErr != nil {
			return ContinueWith(ReasonInvalidJSON)
		}
		if err := schema.RequireKeys(obs.Object, keys...); err != nil {
			return ContinueWith(ReasonMissingKeys)
		}
		return SucceedWith(ReasonValidOutput)
	})
}

// MissingKeys reports which keys an observation lacks, or nil when it
// decoded and is complete.
func MissingKeys(obs Observation, keys ...string) ([]string, error) {
	if obs.DecodeErr != nil {
		return nil, obs.DecodeErr
	}
	err := schema.RequireKeys(obs.Object, keys...)
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return verr.Missing, err
	}
	return nil, err
}

// PlanningTerminator ends the sequencing stage. A planning tool result that
// starts with "Success:" succeeds and one reporting a partial or unsolvable
// run fails. An assistant message carrying the sentinel fails.
func PlanningTerminator(toolName, sentinel string) Terminator {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return TerminatorFunc(func(obs Observation) Decision {
		msg := obs.Message
		switch {
		case msg.IsToolResult(toolName):
			content := strings.TrimSpace(msg.Content)
			if strings.HasPrefix(content, "Success:") {
				return SucceedWith(ReasonPlanFound)
			}
			lower := strings.ToLower(content)
			if strings.Contains(lower, "partly successful") || strings.Contains(lower, "unsolvable") {
				return FailWith(ReasonPlannerFailed)
			}
		case msg.Role == message.RoleAssistant:
			if strings.Contains(obs.Text, sentinel) {
				return FailWith(ReasonDeclaredInfeasible)
			}
		}
		return ContinueWith(ReasonAwaitingPlan)
	})
}
