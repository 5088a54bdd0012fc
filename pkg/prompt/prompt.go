package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"

	"github.com/bmatcuk/doublestar/v4"
)

// Template names.
const (
	GoalInterpretation   = "goal_interpretation"
	SubgoalDecomposition = "subgoal_decomposition"
	ActionSequencing     = "action_sequencing"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// GoalInterpretationData fills the goal interpretation prompt.
type GoalInterpretationData struct {
	Task          string
	Objects       string
	Relations     string
	RelationTypes string
	ActionSpace   string
}

// SubgoalDecompositionData fills the subgoal decomposition prompt.
type SubgoalDecompositionData struct {
	Task            string
	Goals           string
	RelevantObjects string
	InitialStates   string
	FinalActions    string
	SeenObjects     string
	RelationTypes   string
	ActionSpace     string
	Necessity       bool
}

// ActionSequencingData fills the action sequencing prompt.
type ActionSequencingData struct {
	RelevantObjects string
	InitialStates   string
	RelationTypes   string
	ActionSpace     string
	Subgoals        string
	Sentinel        string
	PlannerBudget   int
}

// Renderer renders stage prompts.
type Renderer struct {
	tmpl *template.Template
}

// New loads the built-in templates. Files named <template>.tmpl in
// overrideDir, when given, replace the built-in ones.
func New(overrideDir string) (*Renderer, error) {
	tmpl, err := parse(template.New("prompts"), embedded, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	if overrideDir != "" {
		if _, err := os.Stat(overrideDir); err != nil {
			return nil, fmt.Errorf("prompt directory: %w", err)
		}
		if tmpl, err = parse(tmpl, os.DirFS(overrideDir), "**/*.tmpl"); err != nil {
			return nil, err
		}
	}
	return &Renderer{tmpl: tmpl}, nil
}

func parse(tmpl *template.Template, fsys fs.FS, pattern string) (*template.Template, error) {
	files, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", file, err)
		}
		name := templateName(file)
		if _, err := tmpl.New(name).Option("missingkey=error").Parse(string(data)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", file, err)
		}
	}
	return tmpl, nil
}

func templateName(file string) string {
	return strings.TrimSuffix(path.Base(file), ".tmpl")
}

// Render executes the named template.
func (r *Renderer) Render(name string, data any) (string, error) {
	if r.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}
