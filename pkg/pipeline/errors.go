package pipeline

import "errors"

// Stage-level decision reasons produced by the runner itself.
const (
	ReasonMaxIterations = "max_iterations_exceeded"
	ReasonAdapterError  = "adapter_error"
	ReasonInvalidOutput = "invalid_output"
)

// ErrIterationBudgetExceeded is reported when a stage used every iteration
// without reaching a terminal decision.
var ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")
