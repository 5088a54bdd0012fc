package flow

import (
	"fmt"
	"sync"
)

// Phase is the coarse state of a run.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseSuccess
	PhaseFail
)

func (p Phase) String() string {
	switch p {
	case PhaseSuccess:
		return "success"
	case PhaseFail:
		return "fail"
	default:
		return "running"
	}
}

// State is Running(Stage), Success or Fail.
type State struct {
	Phase  Phase
	Stage  int
	Reason string
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool {
	return s.Phase != PhaseRunning
}

func (s State) String() string {
	if s.Phase == PhaseRunning {
		return fmt.Sprintf("running(%d)", s.Stage)
	}
	return s.Phase.String()
}

// Machine tracks a run across its stages. Success and Fail are absorbing.
type Machine struct {
	mu     sync.Mutex
	stages []string
	state  State
}

// NewMachine starts a run at the first of stages.
func NewMachine(stages ...string) *Machine {
	return &Machine{stages: stages, state: State{Phase: PhaseRunning}}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the name of the running stage.
func (m *Machine) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() || m.state.Stage >= len(m.stages) {
		return "", false
	}
	return m.stages[m.state.Stage], true
}

// Advance applies the decision the running stage ended with. Continue is
// not a stage outcome and is rejected, as is any transition out of a
// terminal state.
func (m *Machine) Advance(d Decision) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return m.state, fmt.Errorf("run already finished: %s", m.state)
	}
	switch d.Verdict {
	case Success:
		if m.state.Stage+1 >= len(m.stages) {
			m.state = State{Phase: PhaseSuccess, Stage: m.state.Stage, Reason: d.Reason}
		} else {
			m.state = State{Phase: PhaseRunning, Stage: m.state.Stage + 1}
		}
	case Fail:
		m.state = State{Phase: PhaseFail, Stage: m.state.Stage, Reason: d.Reason}
	default:
		return m.state, fmt.Errorf("stage %d ended without a verdict", m.state.Stage)
	}
	return m.state, nil
}
