package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/zen-systems/plangate/pkg/planner"
)

func TestConfigReadsFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	configDir := filepath.Join(home, DirName)
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte(`api_keys:
  anthropic: file-ant
  openai: file-openai
model:
  adapter: openai
  model: fast
  temperature: 0.2
stages:
  goal_interpretation:
    max_iterations: 4
planner:
  mode: local
  binary: /opt/downward/fast-downward.py
paths:
  planning_dir: /tmp/from-file
retry:
  max_retries: 5
`)
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("PLANGATE_PLANNING_DIR", "/tmp/from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "file-ant" {
		t.Fatalf("expected file key, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "env-openai" {
		t.Fatalf("expected env key to win, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.Paths.PlanningDir != "/tmp/from-env" {
		t.Fatalf("expected env planning dir, got %q", cfg.Paths.PlanningDir)
	}
	if cfg.Planner.Mode != planner.ModeLocal || cfg.Retry.MaxRetries != 5 {
		t.Fatalf("file sections not loaded: %+v %+v", cfg.Planner, cfg.Retry)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	gi := cfg.Route(StageGoalInterpretation, DefaultAliases(), 0)
	if gi.Target.Adapter != "openai" || gi.Target.Model != "gpt-4o-mini" || gi.MaxIterations != 4 || gi.Temperature != 0.2 {
		t.Fatalf("unexpected route: %+v", gi)
	}
}

func TestConfigDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Adapter != DefaultAdapter || cfg.Model.Model != DefaultModel {
		t.Fatalf("unexpected default model: %+v", cfg.Model)
	}
	if cfg.Paths.EvidenceDir != filepath.Join(home, DirName, "runs") {
		t.Fatalf("unexpected evidence dir %q", cfg.Paths.EvidenceDir)
	}

	as := cfg.Route(StageActionSequencing, nil, 0)
	if as.MaxTokens != 512 || as.MaxIterations != DefaultMaxIterations {
		t.Fatalf("unexpected sequencing route: %+v", as)
	}
	sd := cfg.Route(StageSubgoalDecomposition, nil, 7)
	if sd.MaxTokens != DefaultMaxTokens || sd.MaxIterations != 7 {
		t.Fatalf("unexpected decomposition route: %+v", sd)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateRejectsUnknownStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("stages:\n  planning:\n    max_iterations: 2\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	clearEnv(t)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}

func TestFallbackChain(t *testing.T) {
	cfg := &Config{Fallback: FallbackConfig{
		AllowFallback: true,
		FallbackChain: map[string][]RouteTarget{
			"ollama/qwen3:8b": {{Adapter: "deepseek", Model: "deepseek-chat"}},
			"ollama":          {{Adapter: "openai", Model: "gpt-4o-mini"}},
		},
	}}

	if chain := cfg.FallbackChain(RouteTarget{Adapter: "ollama", Model: "qwen3:8b"}); len(chain) != 1 || chain[0].Adapter != "deepseek" {
		t.Fatalf("expected model-specific chain, got %v", chain)
	}
	if chain := cfg.FallbackChain(RouteTarget{Adapter: "ollama", Model: "llama3.1:8b"}); len(chain) != 1 || chain[0].Adapter != "openai" {
		t.Fatalf("expected adapter chain, got %v", chain)
	}
	cfg.Fallback.AllowFallback = false
	if chain := cfg.FallbackChain(RouteTarget{Adapter: "ollama", Model: "qwen3:8b"}); chain != nil {
		t.Fatalf("expected no chain when fallback is disabled")
	}
}

func TestHasAdapter(t *testing.T) {
	cfg := &Config{DeepSeekAPIKey: "k"}
	if !cfg.HasAdapter("deepseek") || !cfg.HasAdapter("ollama") || cfg.HasAdapter("openai") || cfg.HasAdapter("other") {
		t.Fatalf("unexpected HasAdapter results")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "DEEPSEEK_API_KEY", "OLLAMA_HOST", "PLANGATE_PLANNING_DIR"} {
		t.Setenv(key, "")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
