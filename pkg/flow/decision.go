package flow

import (
	"github.com/zen-systems/plangate/pkg/message"
	"github.com/zen-systems/plangate/pkg/schema"
)

// Verdict is what a terminator decides after a message.
type Verdict int

const (
	Continue Verdict = iota
	Success
	Fail
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return "continue"
	}
}

// Decision is a verdict with the reason behind it.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Terminal reports whether the decision ends the stage.
func (d Decision) Terminal() bool {
	return d.Verdict != Continue
}

// ContinueWith, SucceedWith and FailWith build decisions.
func ContinueWith(reason string) Decision { return Decision{Verdict: Continue, Reason: reason} }

func SucceedWith(reason string) Decision { return Decision{Verdict: Success, Reason: reason} }

func FailWith(reason string) Decision { return Decision{Verdict: Fail, Reason: reason} }

// Observation is the latest message of a stage as the terminator sees it.
// For assistant messages Text is the content with reasoning removed and
// Object its decoded form, or DecodeErr when decoding failed.
type Observation struct {
	Message   message.Message
	Text      string
	Object    map[string]any
	DecodeErr error
}

// Observe prepares an observation of msg.
func Observe(msg message.Message) Observation {
	obs := Observation{Message: msg}
	if msg.Role != message.RoleAssistant {
		obs.Text = msg.Content
		return obs
	}
	obs.Text = message.StripReasoning(msg.Content)
	obs.Object, obs.DecodeErr = schema.DecodeObject(obs.Text)
	return obs
}

// Terminator decides whether a stage is done.
type Terminator interface {
	Decide(obs Observation) Decision
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(obs Observation) Decision

func (f TerminatorFunc) Decide(obs Observation) Decision { return f(obs) }

// Evaluate runs t and turns a panic into Continue, so a broken predicate can
// only cost an iteration.
func Evaluate(t Terminator, obs Observation) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = ContinueWith("terminator_panic")
		}
	}()
	return t.Decide(obs)
}
