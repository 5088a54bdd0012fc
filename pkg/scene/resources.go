package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// Resource file names.
const (
	ObjectStatesFile  = "object_states.json"
	PropertiesFile    = "properties_data.json"
	SynonymsFile      = "class_name_equivalence.json"
	RelationTypesFile = "relation_types.json"
	ActionSpaceFile   = "action_space.json"
)

// Entry is one named vocabulary item, kept in file order.
type Entry struct {
	Name        string
	Description string
}

// Resources is the vocabulary shared by every task of a dataset.
type Resources struct {
	States        map[string][]string
	Properties    map[string][]string
	Synonyms      map[string][]string
	RelationTypes []Entry
	ActionSpace   []Entry
}

// LoadResources reads the vocabulary files from dir. Missing files leave the
// corresponding vocabulary empty.
func LoadResources(dir string) (*Resources, error) {
	res := &Resources{
		States:     map[string][]string{},
		Properties: map[string][]string{},
		Synonyms:   map[string][]string{},
	}
	if err := readStringLists(filepath.Join(dir, ObjectStatesFile), res.States); err != nil {
		return nil, err
	}
	if err := readStringLists(filepath.Join(dir, PropertiesFile), res.Properties); err != nil {
		return nil, err
	}
	if err := readStringLists(filepath.Join(dir, SynonymsFile), res.Synonyms); err != nil {
		return nil, err
	}
	var err error
	if res.RelationTypes, err = readEntries(filepath.Join(dir, RelationTypesFile)); err != nil {
		return nil, err
	}
	if res.ActionSpace, err = readEntries(filepath.Join(dir, ActionSpaceFile)); err != nil {
		return nil, err
	}
	return res, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func readStringLists(path string, into map[string][]string) error {
	data, err := readOptional(path)
	if err != nil || data == nil {
		return err
	}
	if err := json.Unmarshal(data, &into); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readEntries keeps the key order of the JSON object, which a Go map would lose.
func readEntries(path string) ([]Entry, error) {
	data, err := readOptional(path)
	if err != nil || data == nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode %s: invalid JSON", filepath.Base(path))
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("decode %s: expected an object", filepath.Base(path))
	}
	var entries []Entry
	parsed.ForEach(func(key, value gjson.Result) bool {
		entries = append(entries, Entry{Name: key.String(), Description: value.String()})
		return true
	})
	return entries, nil
}

// Candidates returns name followed by its synonyms.
func (r *Resources) Candidates(name string) []string {
	if r == nil {
		return []string{name}
	}
	return append([]string{name}, r.Synonyms[name]...)
}

// Matches reports whether a node class answers to the queried name, either
// spelling being listed as a synonym of the other.
func (r *Resources) Matches(className, query string) bool {
	return contains(r.Candidates(className), query) || contains(r.Candidates(query), className)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// PossibleStates returns the upper-cased states an object class can take.
func (r *Resources) PossibleStates(className string) []string {
	return r.lookup(className, func(res *Resources) map[string][]string { return res.States })
}

// PropertiesOf returns the upper-cased properties of an object class.
func (r *Resources) PropertiesOf(className string) []string {
	return r.lookup(className, func(res *Resources) map[string][]string { return res.Properties })
}

func (r *Resources) lookup(className string, table func(*Resources) map[string][]string) []string {
	if r == nil {
		return nil
	}
	values := table(r)
	for _, name := range r.Candidates(className) {
		if found, ok := values[name]; ok {
			return upper(found)
		}
	}
	return nil
}

// AttachPossibleStates returns a copy of g whose nodes carry their possible states.
func (r *Resources) AttachPossibleStates(g *Graph) *Graph {
	out := g.Clone()
	for i := range out.Nodes {
		out.Nodes[i].PossibleStates = r.PossibleStates(out.Nodes[i].ClassName)
	}
	return out
}

// RenderRelationTypes lists relation types as "NAME : description" lines.
func (r *Resources) RenderRelationTypes() string {
	if r == nil {
		return ""
	}
	return renderEntries(r.RelationTypes)
}

// RenderActionSpace lists actions as "NAME : description" lines.
func (r *Resources) RenderActionSpace() string {
	if r == nil {
		return ""
	}
	return renderEntries(r.ActionSpace)
}

func renderEntries(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s : %s", strings.ToUpper(e.Name), e.Description))
	}
	return strings.Join(lines, "\n")
}

func upper(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(v)
	}
	return out
}
