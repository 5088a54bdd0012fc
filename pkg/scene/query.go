package scene

import (
	"fmt"
	"strings"
)

// NoRelations is returned by Relations for an isolated object.
const NoRelations = "No relations found."

// Describe renders a node with its current and possible states and properties.
func Describe(n Node, res *Resources) string {
	return fmt.Sprintf("%s, id: %d, states: %s, possible states: %s, properties: %s",
		n.ClassName, n.ID,
		list(upper(n.States)),
		list(res.PossibleStates(n.ClassName)),
		list(res.PropertiesOf(n.ClassName)))
}

func list(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}

// FindObject describes the last node answering to name, directly or through
// a synonym. It returns an empty string when nothing matches.
func FindObject(g *Graph, res *Resources, name string) string {
	name = strings.TrimSpace(name)
	var found string
	for _, n := range g.Nodes {
		if res.Matches(n.ClassName, name) {
			found = Describe(n, res)
		}
	}
	return found
}

// Relations lists every edge touching id, in either direction and in graph
// order, as "<from> IS <RELATION> TO <to>".
func Relations(g *Graph, id int) string {
	var lines []string
	for _, e := range g.Edges {
		if e.FromID != id && e.ToID != id {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d IS %s TO %d", e.FromID, strings.ToUpper(e.RelationType), e.ToID))
	}
	if len(lines) == 0 {
		return NoRelations
	}
	return strings.Join(lines, "\n")
}

// Summary is the part of the scene shown up front.
type Summary struct {
	Objects   string
	Relations string
}

// Summarize describes the first maxObjects nodes and the relations among them
// found in the first maxRelations edges. Non-positive limits mean no limit.
func Summarize(g *Graph, res *Resources, maxObjects, maxRelations int) Summary {
	nodes := g.Nodes
	if maxObjects > 0 && len(nodes) > maxObjects {
		nodes = nodes[:maxObjects]
	}
	edges := g.Edges
	if maxRelations > 0 && len(edges) > maxRelations {
		edges = edges[:maxRelations]
	}

	known := make(map[int]string, len(nodes))
	objects := make([]string, 0, len(nodes))
	for _, n := range nodes {
		known[n.ID] = n.ClassName
		objects = append(objects, Describe(n, res))
	}

	var relations []string
	for _, e := range edges {
		from, okFrom := known[e.FromID]
		to, okTo := known[e.ToID]
		if !okFrom || !okTo {
			continue
		}
		relations = append(relations, fmt.Sprintf("%s (%d) IS %s TO %s (%d)", from, e.FromID, e.RelationType, to, e.ToID))
	}

	return Summary{
		Objects:   strings.Join(objects, "\n"),
		Relations: strings.Join(relations, "\n"),
	}
}

// InitialState is the snapshot of the relevant objects handed to later stages.
type InitialState struct {
	Text string
	Seen []string
}

// SeenList joins the seen object keys for a prompt.
func (s InitialState) SeenList() string {
	return strings.Join(s.Seen, ", ")
}

// InitialStates describes the first node matching each relevant object name
// and the relations among those nodes:
//
//	Objects:
//	Name : fridge; id : 3; category : Appliances; states : CLOSED; properties : CONTAINERS
//	Relations:
//	INSIDE(milk.5, fridge.3)
//
// Seen lists every node matching any relevant name as class.id.
func InitialStates(g *Graph, res *Resources, names []string) InitialState {
	lines := []string{"Objects:"}
	keys := map[int]string{}
	var seen []string
	seenSet := map[string]struct{}{}

	for _, name := range names {
		first := true
		for _, n := range g.Nodes {
			if !res.Matches(n.ClassName, name) {
				continue
			}
			key := n.Key()
			if _, ok := seenSet[key]; !ok {
				seenSet[key] = struct{}{}
				seen = append(seen, key)
			}
			if !first {
				continue
			}
			first = false
			if _, ok := keys[n.ID]; ok {
				continue
			}
			keys[n.ID] = key
			lines = append(lines, fmt.Sprintf("Name : %s; id : %d; category : %s; states : %s; properties : %s",
				n.ClassName, n.ID, n.Category,
				strings.Join(upper(n.States), ", "),
				strings.Join(upper(n.Properties), ", ")))
		}
	}

	lines = append(lines, "Relations:")
	for _, e := range g.Edges {
		from, okFrom := keys[e.FromID]
		to, okTo := keys[e.ToID]
		if okFrom && okTo {
			lines = append(lines, fmt.Sprintf("%s(%s, %s)", e.RelationType, from, to))
		}
	}

	return InitialState{Text: strings.Join(lines, "\n"), Seen: seen}
}
