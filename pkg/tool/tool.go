package tool

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/zen-systems/plangate/pkg/scene"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

// Param declares one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Schema lists the arguments a tool accepts. Anything else the model sends
// is dropped before the handler runs.
type Schema struct {
	Params []Param
}

// JSONSchema renders the schema as a JSON schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := []string{}
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Call is what a handler receives: sanitized arguments plus the run context
// the dispatcher injects. The model can never supply Scene or Resources.
type Call struct {
	Args      []byte
	Scene     *scene.Graph
	Resources *scene.Resources
}

// String returns a string argument.
func (c Call) String(name string) string {
	return gjson.GetBytes(c.Args, name).String()
}

// Int returns an integer argument.
func (c Call) Int(name string) int {
	return int(gjson.GetBytes(c.Args, name).Int())
}

// Tool is a named capability the model can call.
type Tool interface {
	Name() string
	Description() string
	Parameters() Schema
	Call(ctx context.Context, call Call) (string, error)
}
