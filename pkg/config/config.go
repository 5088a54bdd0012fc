package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/plangate/pkg/planner"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".plangate"

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	OllamaHost      string

	Model    ModelConfig
	Stages   map[string]StageConfig
	Fallback FallbackConfig
	Planner  planner.Config
	Paths    PathsConfig
	Retry    RetryConfig

	ConfigDir string
}

// FileConfig represents the structure of ~/.plangate/config.yaml
type FileConfig struct {
	APIKeys  APIKeysConfig          `yaml:"api_keys"`
	Model    ModelConfig            `yaml:"model"`
	Stages   map[string]StageConfig `yaml:"stages"`
	Fallback FallbackConfig         `yaml:"fallback"`
	Planner  planner.Config         `yaml:"planner"`
	Paths    PathsConfig            `yaml:"paths"`
	Retry    RetryConfig            `yaml:"retry"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
	Ollama    string `yaml:"ollama_host"`
}

// ModelConfig is the completion target used by stages without an override.
type ModelConfig struct {
	Adapter     string  `yaml:"adapter"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PathsConfig locates the dataset, vocabulary and output directories.
type PathsConfig struct {
	PlanningDir  string `yaml:"planning_dir"`
	DatasetDir   string `yaml:"dataset_dir"`
	ResourcesDir string `yaml:"resources_dir"`
	EvidenceDir  string `yaml:"evidence_dir"`
	PromptsDir   string `yaml:"prompts_dir"`
}

// RetryConfig defines retry and backoff behavior for completion calls.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// Defaults.
const (
	DefaultAdapter       = "ollama"
	DefaultModel         = "qwen3:8b"
	DefaultMaxTokens     = 2048
	DefaultMaxIterations = 10
	DefaultPlanningDir   = "planning"
	DefaultDatasetDir    = "data"
	DefaultResourcesDir  = "resources"
)

// Load reads ~/.plangate/config.yaml, when present, and overlays the
// environment. Environment variables take precedence over file values.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig, err := readFileConfig(filepath.Join(configDir, "config.yaml"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if fileConfig == nil {
		fileConfig = &FileConfig{}
	}
	return build(fileConfig, configDir), nil
}

// LoadFile loads configuration from an explicit file. The file must exist.
func LoadFile(path string) (*Config, error) {
	fileConfig, err := readFileConfig(path)
	if err != nil {
		return nil, err
	}
	return build(fileConfig, filepath.Dir(path)), nil
}

// Default returns the configuration used when no file or environment is
// consulted.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func build(fc *FileConfig, configDir string) *Config {
	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fc.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fc.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fc.APIKeys.Google),
		DeepSeekAPIKey:  getEnvOrDefault("DEEPSEEK_API_KEY", fc.APIKeys.DeepSeek),
		OllamaHost:      getEnvOrDefault("OLLAMA_HOST", fc.APIKeys.Ollama),
		Model:           fc.Model,
		Stages:          fc.Stages,
		Fallback:        fc.Fallback,
		Planner:         fc.Planner,
		Paths:           fc.Paths,
		Retry:           fc.Retry,
		ConfigDir:       configDir,
	}
	cfg.Paths.PlanningDir = getEnvOrDefault("PLANGATE_PLANNING_DIR", cfg.Paths.PlanningDir)
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Adapter == "" {
		cfg.Model.Adapter = DefaultAdapter
	}
	if cfg.Model.Model == "" {
		cfg.Model.Model = DefaultModel
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}
	if cfg.Stages == nil {
		cfg.Stages = make(map[string]StageConfig)
	}
	if _, ok := cfg.Stages[StageActionSequencing]; !ok {
		// Sequencing replies are mostly tool calls.
		cfg.Stages[StageActionSequencing] = StageConfig{MaxTokens: 512}
	}
	if cfg.Paths.PlanningDir == "" {
		cfg.Paths.PlanningDir = DefaultPlanningDir
	}
	if cfg.Paths.DatasetDir == "" {
		cfg.Paths.DatasetDir = DefaultDatasetDir
	}
	if cfg.Paths.ResourcesDir == "" {
		cfg.Paths.ResourcesDir = DefaultResourcesDir
	}
	if cfg.Paths.EvidenceDir == "" {
		cfg.Paths.EvidenceDir = filepath.Join(cfg.ConfigDir, "runs")
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	if c.Model.Temperature < 0 {
		return fmt.Errorf("model temperature must not be negative")
	}
	for name, stage := range c.Stages {
		if !IsStage(name) {
			return fmt.Errorf("unknown stage %q", name)
		}
		if stage.MaxIterations < 0 || stage.MaxTokens < 0 {
			return fmt.Errorf("stage %s: limits must not be negative", name)
		}
	}
	return nil
}

// HasAdapter returns true if the given adapter can be constructed.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	case "ollama", "mock":
		return true
	default:
		return false
	}
}

func readFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &FileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, DirName)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", err
	}
	return configDir, nil
}
