package scene

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Default fixture layout of the program dataset.
const (
	DefaultGraphPattern   = "init_and_final_graphs/**/graphs/*.json"
	DefaultProgramPattern = "executable_programs/**/executables/*.txt"
)

// Task is one planning problem: a goal description and its initial scene.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	GraphFile   string `json:"graph_file"`
	ProgramFile string `json:"program_file"`
	Graph       *Graph `json:"-"`
}

// FixtureStore pairs scene graphs with program descriptions by sorted position.
type FixtureStore struct {
	fsys           fs.FS
	GraphPattern   string
	ProgramPattern string
}

// NewFixtureStore opens the dataset rooted at dir.
func NewFixtureStore(dir string) (*FixtureStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset %s is not a directory", dir)
	}
	return NewFixtureStoreFS(os.DirFS(dir)), nil
}

// NewFixtureStoreFS opens a dataset from any file system.
func NewFixtureStoreFS(fsys fs.FS) *FixtureStore {
	return &FixtureStore{
		fsys:           fsys,
		GraphPattern:   DefaultGraphPattern,
		ProgramPattern: DefaultProgramPattern,
	}
}

func (s *FixtureStore) files(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(s.fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// List returns the identifiers of every task, in order.
func (s *FixtureStore) List() ([]string, error) {
	graphs, err := s.files(s.GraphPattern)
	if err != nil {
		return nil, err
	}
	programs, err := s.files(s.ProgramPattern)
	if err != nil {
		return nil, err
	}
	n := len(graphs)
	if len(programs) < n {
		n = len(programs)
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids, nil
}

// Load resolves a task. The id is either a position in the sorted fixture
// lists or the file stem shared by the graph and the program.
func (s *FixtureStore) Load(id string) (*Task, error) {
	graphs, err := s.files(s.GraphPattern)
	if err != nil {
		return nil, err
	}
	programs, err := s.files(s.ProgramPattern)
	if err != nil {
		return nil, err
	}

	graphFile, programFile, err := pick(id, graphs, programs)
	if err != nil {
		return nil, err
	}

	graphData, err := fs.ReadFile(s.fsys, graphFile)
	if err != nil {
		return nil, fmt.Errorf("read scene graph: %w", err)
	}
	graph, err := ParseGraph(graphData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", graphFile, err)
	}
	programData, err := fs.ReadFile(s.fsys, programFile)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}

	return &Task{
		ID:          id,
		Description: TaskDescription(string(programData)),
		GraphFile:   graphFile,
		ProgramFile: programFile,
		Graph:       graph,
	}, nil
}

func pick(id string, graphs, programs []string) (string, string, error) {
	if idx, err := strconv.Atoi(id); err == nil {
		if idx < 0 || idx >= len(graphs) || idx >= len(programs) {
			return "", "", fmt.Errorf("task %d out of range (%d graphs, %d programs)", idx, len(graphs), len(programs))
		}
		return graphs[idx], programs[idx], nil
	}

	graph := findStem(graphs, id)
	program := findStem(programs, id)
	if graph == "" || program == "" {
		return "", "", fmt.Errorf("task %q not found", id)
	}
	return graph, program, nil
}

func findStem(files []string, stem string) string {
	for _, f := range files {
		base := path.Base(f)
		if strings.TrimSuffix(base, path.Ext(base)) == stem {
			return f
		}
	}
	return ""
}

// TaskDescription returns the first two lines of a program: its title and
// its natural-language goal.
func TaskDescription(program string) string {
	program = strings.ReplaceAll(program, "\r\n", "\n")
	lines := strings.SplitN(program, "\n", 3)
	if len(lines) > 2 {
		lines = lines[:2]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
