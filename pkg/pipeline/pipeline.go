package pipeline

import (
	"fmt"
	"sync"

	"github.com/zen-systems/plangate/pkg/message"
	"github.com/zen-systems/plangate/pkg/scene"
)

// State is the per-run context shared by the stages. The scene graph is
// never modified and the subgoal queue is written once.
type State struct {
	Conversation *message.Conversation
	Scene        *scene.Graph
	Attempts     map[string]int

	mu       sync.Mutex
	subgoals []string
	frozen   bool
}

// NewState creates the state of a run over g.
func NewState(g *scene.Graph) *State {
	return &State{
		Conversation: message.NewConversation(),
		Scene:        g,
		Attempts:     make(map[string]int),
	}
}

// SetSubgoals stores the subgoal queue. It can be set only once.
func (s *State) SetSubgoals(subgoals []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fmt.Errorf("subgoals already set")
	}
	s.subgoals = append([]string(nil), subgoals...)
	s.frozen = true
	return nil
}

// Subgoals returns a copy of the subgoal queue.
func (s *State) Subgoals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subgoals...)
}
