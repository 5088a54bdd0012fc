package pipeline

import (
	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/flow"
)

// StageSpec describes one tool-calling stage.
type StageSpec struct {
	Name         string
	SystemPrompt string
	Kickoff      string
	Tools        []string

	MaxIterations int
	Terminator    flow.Terminator

	// RepairFeedback appends a corrective user message after an answer that
	// was not valid JSON or lacked RequiredKeys.
	RepairFeedback bool
	RequiredKeys   []string
	// Validate, when set, checks a decoded answer beyond its keys. Its error
	// is fed back like a decode error.
	Validate func(obj map[string]any) error
	// Nudge is appended as a user message after a plain answer that did not
	// end the stage.
	Nudge string

	Target      config.RouteTarget
	MaxTokens   int
	Temperature float64
}

func (s StageSpec) allows(toolName string) bool {
	for _, name := range s.Tools {
		if name == toolName {
			return true
		}
	}
	return false
}
