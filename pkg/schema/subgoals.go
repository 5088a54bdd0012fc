package schema

import "strings"

// statePredicates are the predicates describing object state or relations,
// as opposed to actions.
var statePredicates = map[string]struct{}{
	"NEXT_TO":     {},
	"FACING":      {},
	"ON":          {},
	"OFF":         {},
	"OPEN":        {},
	"CLOSED":      {},
	"PLUGGED_IN":  {},
	"PLUGGED_OUT": {},
	"SITTING":     {},
	"LYING":       {},
	"CLEAN":       {},
	"DIRTY":       {},
	"ONTOP":       {},
	"INSIDE":      {},
	"BETWEEN":     {},
	"HOLDS_RH":    {},
	"HOLDS_LH":    {},
}

// IsStatePredicate reports whether an expression starts with a state predicate.
func IsStatePredicate(expr string) bool {
	name := strings.TrimSpace(expr)
	if idx := strings.Index(name, "("); idx >= 0 {
		name = name[:idx]
	}
	_, ok := statePredicates[strings.TrimSpace(name)]
	return ok
}

// ParseSubgoals turns a decomposition into the ordered subgoal queue.
// Action lines are dropped when filterActions is set or the answer says
// actions are not needed.
func ParseSubgoals(sd *SubgoalDecomposition, filterActions bool) []string {
	if sd == nil {
		return nil
	}
	if !filterActions && bool(sd.NecessityToUseAction) {
		return append([]string(nil), sd.Output...)
	}
	var out []string
	for _, item := range sd.Output {
		if IsStatePredicate(item) {
			out = append(out, item)
		}
	}
	return out
}
