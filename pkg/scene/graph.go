package scene

import (
	"encoding/json"
	"fmt"
)

// Node is one object of the environment.
type Node struct {
	ID             int      `json:"id"`
	ClassName      string   `json:"class_name"`
	Category       string   `json:"category,omitempty"`
	States         []string `json:"states,omitempty"`
	Properties     []string `json:"properties,omitempty"`
	PossibleStates []string `json:"possible_states,omitempty"`
}

// Key renders the node as class.id, the spelling used in predicates.
func (n Node) Key() string {
	return fmt.Sprintf("%s.%d", n.ClassName, n.ID)
}

// Edge is a directed relation: From is RelationType to To.
type Edge struct {
	FromID       int    `json:"from_id"`
	ToID         int    `json:"to_id"`
	RelationType string `json:"relation_type"`
}

// Graph is the read-only scene a run plans against.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ParseGraph decodes a graph document. Both a bare graph and the dataset
// layout {"init_graph": {...}} are accepted.
func ParseGraph(data []byte) (*Graph, error) {
	var wrapped struct {
		InitGraph *Graph `json:"init_graph"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode scene graph: %w", err)
	}
	if wrapped.InitGraph != nil {
		return wrapped.InitGraph, nil
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode scene graph: %w", err)
	}
	return &g, nil
}

// Node looks a node up by id.
func (g *Graph) Node(id int) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: append([]Edge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		n.States = append([]string(nil), n.States...)
		n.Properties = append([]string(nil), n.Properties...)
		n.PossibleStates = append([]string(nil), n.PossibleStates...)
		out.Nodes[i] = n
	}
	return out
}
