package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/tool"
)

// Manifest tunes the stages of the pipeline. The stage sequence itself is
// fixed; a manifest selects tools, iteration limits and feedback per stage.
type Manifest struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Stages      []StageManifest `yaml:"stages"`
}

// StageManifest configures one stage.
type StageManifest struct {
	Name           string   `yaml:"name"`
	Tools          []string `yaml:"tools,omitempty"`
	MaxIterations  int      `yaml:"max_iterations,omitempty"`
	RepairFeedback *bool    `yaml:"repair_feedback,omitempty"`
}

// Repair reports whether repair feedback is enabled, defaulting to true.
func (s StageManifest) Repair() bool {
	return s.RepairFeedback == nil || *s.RepairFeedback
}

// DefaultManifest returns the built-in stage setup.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name: "plangate",
		Stages: []StageManifest{
			{Name: config.StageGoalInterpretation, Tools: []string{tool.FindObjectName, tool.GetRelationsName}},
			{Name: config.StageSubgoalDecomposition},
			{Name: config.StageActionSequencing, Tools: []string{tool.FindObjectName, tool.GetRelationsName, tool.PlanFromPDDLName}},
		},
	}
}

// LoadManifest reads a stage manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	return &manifest, nil
}

// Validate checks the manifest against the stage sequence and the tool names.
func (m *Manifest) Validate(tools []string) error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}
	if len(m.Stages) != len(config.Stages) {
		return fmt.Errorf("manifest must define the stages %v", config.Stages)
	}

	known := make(map[string]struct{}, len(tools))
	for _, name := range tools {
		known[name] = struct{}{}
	}

	for i, stage := range m.Stages {
		if stage.Name != config.Stages[i] {
			return fmt.Errorf("stage %d must be %s, got %q", i+1, config.Stages[i], stage.Name)
		}
		if stage.MaxIterations < 0 {
			return fmt.Errorf("stage %s: max_iterations must not be negative", stage.Name)
		}
		seen := make(map[string]struct{})
		for _, name := range stage.Tools {
			if _, ok := known[name]; !ok {
				return fmt.Errorf("stage %s references unknown tool %s", stage.Name, name)
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("stage %s lists tool %s twice", stage.Name, name)
			}
			seen[name] = struct{}{}
		}
	}

	if !m.Stage(config.StageActionSequencing).has(tool.PlanFromPDDLName) {
		return fmt.Errorf("stage %s must offer %s", config.StageActionSequencing, tool.PlanFromPDDLName)
	}
	return nil
}

// Stage returns the settings of the named stage.
func (m *Manifest) Stage(name string) StageManifest {
	for _, stage := range m.Stages {
		if stage.Name == name {
			return stage
		}
	}
	return StageManifest{Name: name}
}

func (s StageManifest) has(toolName string) bool {
	for _, name := range s.Tools {
		if name == toolName {
			return true
		}
	}
	return false
}
