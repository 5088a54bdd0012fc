package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	aliases := &ModelAliases{
		Aliases: map[string]string{
			"qwen":    "qwen3:8b",
			"quality": "claude-sonnet-4-20250514",
		},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "resolve known alias", input: "qwen", expected: "qwen3:8b"},
		{name: "resolve another alias", input: "quality", expected: "claude-sonnet-4-20250514"},
		{name: "unknown alias returns input unchanged", input: "unknown-model", expected: "unknown-model"},
		{name: "canonical model returns unchanged", input: "qwen3:8b", expected: "qwen3:8b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aliases.Resolve(tt.input); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolve_NilAliases(t *testing.T) {
	var aliases *ModelAliases
	if got := aliases.Resolve("qwen"); got != "qwen" {
		t.Errorf("Resolve on nil should return input, got %q", got)
	}
	if aliases.IsAlias("qwen") {
		t.Error("IsAlias on nil should be false")
	}
}

func TestLookup(t *testing.T) {
	aliases := DefaultAliases()

	tests := []struct {
		input string
		want  Resolution
	}{
		{input: "qwen", want: Resolution{Name: "qwen", Model: "qwen3:8b", Provider: "ollama", Alias: true}},
		{input: "deepseek-chat", want: Resolution{Name: "deepseek-chat", Model: "deepseek-chat", Provider: "deepseek"}},
		{input: "mystery", want: Resolution{Name: "mystery", Model: "mystery"}},
	}
	for _, tt := range tests {
		if got := aliases.Lookup(tt.input); got != tt.want {
			t.Errorf("Lookup(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}

	var none *ModelAliases
	if got := none.Lookup("qwen"); got != (Resolution{Name: "qwen", Model: "qwen"}) {
		t.Errorf("Lookup on nil = %+v", got)
	}
}

func TestValidateModel(t *testing.T) {
	aliases := DefaultAliases()

	if err := aliases.ValidateModel("ollama", "qwen3:8b"); err != nil {
		t.Errorf("expected qwen3:8b to be valid: %v", err)
	}
	if err := aliases.ValidateModel("ollama", "gpt-4o"); err == nil {
		t.Error("expected gpt-4o to be rejected for ollama")
	}
	if err := aliases.ValidateModel("nope", "qwen3:8b"); err == nil {
		t.Error("expected unknown adapter to be rejected")
	}
}

func TestGetProviderForModel(t *testing.T) {
	aliases := DefaultAliases()
	if got := aliases.GetProviderForModel("deepseek-chat"); got != "deepseek" {
		t.Errorf("GetProviderForModel(deepseek-chat) = %q", got)
	}
	if got := aliases.GetProviderForModel("missing"); got != "" {
		t.Errorf("expected empty provider, got %q", got)
	}
}

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := "aliases:\n  small: qwen3:4b\nproviders:\n  ollama:\n    - qwen3:4b\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if aliases.Resolve("small") != "qwen3:4b" {
		t.Errorf("alias not loaded: %+v", aliases.Aliases)
	}
	if err := aliases.ValidateModel("ollama", "qwen3:4b"); err != nil {
		t.Errorf("provider list not loaded: %v", err)
	}
}

func TestLoadAliases_FileNotFound(t *testing.T) {
	if _, err := LoadAliases(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAliasesWithFallback(t *testing.T) {
	setHomeEnv(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte("aliases:\n  x: y\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	aliases, err := LoadAliasesWithFallback(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if aliases.Resolve("x") != "y" {
		t.Errorf("expected fallback file to be used")
	}

	empty, err := LoadAliasesWithFallback("")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(empty.ListAliases()) != 0 {
		t.Errorf("expected no aliases, got %v", empty.ListAliases())
	}
}

func TestValidateStages(t *testing.T) {
	aliases := DefaultAliases()

	cfg := &Config{Model: ModelConfig{Adapter: "ollama", Model: "qwen"}}
	applyDefaults(cfg)
	if errs := aliases.ValidateStages(cfg); len(errs) != 0 {
		t.Fatalf("expected valid stages, got %v", errs)
	}

	cfg.Stages[StageSubgoalDecomposition] = StageConfig{Adapter: "openai", Model: "qwen3:8b"}
	cfg.Fallback = FallbackConfig{AllowFallback: true, FallbackChain: map[string][]RouteTarget{
		"ollama": {{Adapter: "deepseek", Model: "cheap"}, {Adapter: "google", Model: "gpt-4o"}},
	}}
	errs := aliases.ValidateStages(cfg)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestDefaultAliases(t *testing.T) {
	aliases := DefaultAliases()
	for alias, model := range aliases.ListAliases() {
		if aliases.GetProviderForModel(model) == "" {
			t.Errorf("alias %q resolves to %q which no provider lists", alias, model)
		}
	}
	if got := aliases.ListProviders(); len(got) != 5 || got[0] != "anthropic" {
		t.Errorf("unexpected providers %v", got)
	}
}
