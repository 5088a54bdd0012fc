package tool

import (
	"fmt"
	"sort"

	"github.com/zen-systems/plangate/pkg/adapter"
)

// Registry holds tools by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, ok := r.tools[t.Name()]; ok {
		return fmt.Errorf("duplicate tool: %s", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs describes the named tools for a completion request.
func (r *Registry) Specs(names ...string) ([]adapter.ToolSpec, error) {
	specs := make([]adapter.ToolSpec, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool: %s", name)
		}
		specs = append(specs, adapter.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters().JSONSchema(),
		})
	}
	return specs, nil
}
