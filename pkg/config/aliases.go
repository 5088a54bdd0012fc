package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases manages model alias resolution and validation.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}

	// Initialize maps if nil
	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}

	return &aliases, nil
}

// LoadAliasesWithFallback loads aliases from the user config dir, falling back to
// the provided default path if not found.
func LoadAliasesWithFallback(defaultPath string) (*ModelAliases, error) {
	// Try user config directory first
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, DirName, "models.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return LoadAliases(userPath)
		}
	}

	// Fall back to default path
	if defaultPath != "" {
		if _, err := os.Stat(defaultPath); err == nil {
			return LoadAliases(defaultPath)
		}
	}

	// Return empty aliases if no config found
	return &ModelAliases{
		Aliases:   make(map[string]string),
		Providers: make(map[string][]string),
	}, nil
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil || a.Aliases == nil {
		return false
	}
	_, ok := a.Aliases[name]
	return ok
}

// Resolution is the routing of one model name.
type Resolution struct {
	Name     string
	Model    string
	Provider string
	Alias    bool
}

// Lookup resolves name and reports which provider serves the result.
// Provider is empty when no provider lists the model.
func (a *ModelAliases) Lookup(name string) Resolution {
	model := a.Resolve(name)
	return Resolution{
		Name:     name,
		Model:    model,
		Provider: a.GetProviderForModel(model),
		Alias:    a.IsAlias(name),
	}
}

// ValidateModel checks if a model exists in the provider's list.
// Returns nil if valid, or an error describing the problem.
func (a *ModelAliases) ValidateModel(adapter, model string) error {
	if a == nil || a.Providers == nil {
		return nil // No validation possible without provider info
	}

	models, ok := a.Providers[adapter]
	if !ok {
		return fmt.Errorf("unknown adapter %q", adapter)
	}

	for _, m := range models {
		if m == model {
			return nil
		}
	}

	return fmt.Errorf("model %q not in %s provider list", model, adapter)
}

// ListAliases returns a copy of the aliases map.
func (a *ModelAliases) ListAliases() map[string]string {
	if a == nil || a.Aliases == nil {
		return make(map[string]string)
	}
	result := make(map[string]string, len(a.Aliases))
	for k, v := range a.Aliases {
		result[k] = v
	}
	return result
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// GetProviderModels returns the models for a given provider.
func (a *ModelAliases) GetProviderModels(provider string) []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return a.Providers[provider]
}

// GetProviderForModel returns the provider name for a canonical model.
func (a *ModelAliases) GetProviderForModel(model string) string {
	if a == nil || a.Providers == nil {
		return ""
	}
	for provider, models := range a.Providers {
		for _, m := range models {
			if m == model {
				return provider
			}
		}
	}
	return ""
}

// ValidateStages checks that every stage route resolves to a listed model.
// Returns a slice of validation errors (empty if all valid).
func (a *ModelAliases) ValidateStages(cfg *Config) []error {
	if a == nil || cfg == nil {
		return nil
	}

	var errors []error
	for _, stage := range Stages {
		route := cfg.Route(stage, a, 0)
		if route.Target.Adapter == "mock" {
			continue
		}
		if err := a.ValidateModel(route.Target.Adapter, route.Target.Model); err != nil {
			errors = append(errors, fmt.Errorf("stage %q: %w", stage, err))
		}
	}
	for key, chain := range cfg.Fallback.FallbackChain {
		for _, target := range chain {
			if err := a.ValidateModel(target.Adapter, a.Resolve(target.Model)); err != nil {
				errors = append(errors, fmt.Errorf("fallback %q: %w", key, err))
			}
		}
	}
	return errors
}

// DefaultAliases returns the default model aliases configuration.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			// Ollama
			"qwen":       "qwen3:8b",
			"qwen-large": "qwen3:32b",
			"llama":      "llama3.1:8b",
			// OpenAI
			"fast":     "gpt-4o-mini",
			"thinking": "o4-mini",
			// Anthropic
			"quality": "claude-sonnet-4-20250514",
			"deep":    "claude-opus-4-20250514",
			// Google
			"flash": "gemini-2.5-flash",
			"pro":   "gemini-2.5-pro",
			// DeepSeek
			"cheap":  "deepseek-chat",
			"reason": "deepseek-reasoner",
		},
		Providers: map[string][]string{
			"ollama":    {"qwen3:8b", "qwen3:32b", "llama3.1:8b"},
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-4o", "gpt-4o-mini", "o4-mini"},
			"google":    {"gemini-2.5-flash", "gemini-2.5-pro"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
		},
	}
}
