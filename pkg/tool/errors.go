package tool

import "fmt"

// ErrorKind classifies a dispatch failure.
type ErrorKind string

const (
	UnknownTool     ErrorKind = "unknown_tool"
	InvalidArgument ErrorKind = "invalid_argument"
	HandlerFailed   ErrorKind = "handler_failed"
	BudgetExhausted ErrorKind = "budget_exhausted"
)

// DispatchError is a failed tool call. Its message is the tool result the
// model sees, so the stage can carry on and the model can correct itself.
type DispatchError struct {
	Tool  string
	Kind  ErrorKind
	Param string
	Limit int
	Err   error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "tool error"
	}
	switch e.Kind {
	case UnknownTool:
		return "Unknown tool: " + e.Tool
	case InvalidArgument:
		if e.Param == "" {
			return fmt.Sprintf("Error: invalid arguments: %v", e.Err)
		}
		return fmt.Sprintf("Error: invalid argument %q: %v", e.Param, e.Err)
	case BudgetExhausted:
		return RefusalText(e.Limit)
	default:
		return fmt.Sprintf("Error: %s: %v", e.Tool, e.Err)
	}
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RefusalText is returned instead of running a tool whose budget is spent.
func RefusalText(limit int) string {
	return fmt.Sprintf("You've reached the limit of planner calls (%d). The plan is considered infeasible.", limit)
}
