package config

import "fmt"

// Stage names.
const (
	StageGoalInterpretation   = "goal_interpretation"
	StageSubgoalDecomposition = "subgoal_decomposition"
	StageActionSequencing     = "action_sequencing"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageGoalInterpretation, StageSubgoalDecomposition, StageActionSequencing}

// IsStage reports whether name is a pipeline stage.
func IsStage(name string) bool {
	for _, s := range Stages {
		if s == name {
			return true
		}
	}
	return false
}

// StageConfig overrides the completion target and limits of one stage.
// Zero fields inherit from the model section.
type StageConfig struct {
	Adapter       string `yaml:"adapter,omitempty"`
	Model         string `yaml:"model,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
	MaxTokens     int    `yaml:"max_tokens,omitempty"`
}

// RouteTarget specifies an adapter and model combination.
type RouteTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

func (t RouteTarget) String() string {
	return fmt.Sprintf("%s/%s", t.Adapter, t.Model)
}

// FallbackConfig defines adapter/model fallbacks for failed completion calls.
type FallbackConfig struct {
	AllowFallback bool                     `yaml:"allow_fallback,omitempty"`
	FallbackChain map[string][]RouteTarget `yaml:"fallback_chain,omitempty"`
}

// StageRoute is the resolved completion setup of a stage.
type StageRoute struct {
	Target        RouteTarget
	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// Route resolves the adapter, model and limits of a stage. Model aliases
// are resolved when aliases is non-nil. maxIterations, when positive,
// overrides every configured iteration limit.
func (c *Config) Route(stage string, aliases *ModelAliases, maxIterations int) StageRoute {
	route := StageRoute{
		Target:        RouteTarget{Adapter: c.Model.Adapter, Model: c.Model.Model},
		MaxIterations: DefaultMaxIterations,
		MaxTokens:     c.Model.MaxTokens,
		Temperature:   c.Model.Temperature,
	}
	if sc, ok := c.Stages[stage]; ok {
		if sc.Adapter != "" {
			route.Target.Adapter = sc.Adapter
		}
		if sc.Model != "" {
			route.Target.Model = sc.Model
		}
		if sc.MaxIterations > 0 {
			route.MaxIterations = sc.MaxIterations
		}
		if sc.MaxTokens > 0 {
			route.MaxTokens = sc.MaxTokens
		}
	}
	if maxIterations > 0 {
		route.MaxIterations = maxIterations
	}
	route.Target.Model = aliases.Resolve(route.Target.Model)
	return route
}

// FallbackChain returns the targets to try after target failed, most
// specific key first: "adapter/model", then "adapter".
func (c *Config) FallbackChain(target RouteTarget) []RouteTarget {
	if !c.Fallback.AllowFallback || c.Fallback.FallbackChain == nil {
		return nil
	}
	if chain, ok := c.Fallback.FallbackChain[target.String()]; ok {
		return chain
	}
	return c.Fallback.FallbackChain[target.Adapter]
}
