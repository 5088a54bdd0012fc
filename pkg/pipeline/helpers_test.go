package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/artifact"
	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/flow"
	"github.com/zen-systems/plangate/pkg/planner"
	"github.com/zen-systems/plangate/pkg/scene"
	"github.com/zen-systems/plangate/pkg/schema"
	"github.com/zen-systems/plangate/pkg/tool"
)

const livingRoomGraph = `{"init_graph": {
	"nodes": [
		{"id": 1, "class_name": "character", "category": "Characters", "states": [], "properties": []},
		{"id": 12, "class_name": "tv", "category": "Electronics", "states": ["off"], "properties": ["has_switch"]},
		{"id": 20, "class_name": "sofa", "category": "Furniture", "states": [], "properties": ["sittable"]}
	],
	"edges": [
		{"from_id": 20, "to_id": 12, "relation_type": "FACING"}
	]
}}`

const (
	validGoals    = `{"goals": ["ON(tv.12)"], "relevant_objects": [{"name": "tv", "id": 12}], "final_actions": []}`
	validSubgoals = `{"necessity_to_use_action": "no", "actions_to_include": [], "output": ["NEXT_TO(character.1, tv.12)", "SWITCHON(tv.12)", "ON(tv.12)"]}`
	testPDDL      = "=== domain.pddl ===\n(define (domain home) (:predicates (on ?x)))\n=== problem.pddl ===\n(define (problem watch) (:domain home) (:goal (on tv)))"
)

func testFixtures() *scene.FixtureStore {
	return scene.NewFixtureStoreFS(fstest.MapFS{
		"init_and_final_graphs/TrimmedTestScene1_graph/graphs/file1.json":   {Data: []byte(livingRoomGraph)},
		"executable_programs/TrimmedTestScene1_graph/executables/file1.txt": {Data: []byte("Watch TV\nTurn on the tv.\n\n[WALK] <tv> (12)\n")},
	})
}

func planCall(t *testing.T) adapter.MockStep {
	t.Helper()
	args, err := json.Marshal(map[string]string{"pddl_text": testPDDL})
	require.NoError(t, err)
	return adapter.MockToolCall(tool.PlanFromPDDLName, string(args))
}

// planRunner stands in for Fast Downward.
type planRunner struct {
	exitCode int
	plan     string
	calls    int
}

func (r *planRunner) Run(_ context.Context, workdir string, command []string) (*planner.CommandResult, error) {
	r.calls++
	if r.plan != "" {
		if err := os.WriteFile(filepath.Join(workdir, artifact.PlanFile), []byte(r.plan), 0o644); err != nil {
			return nil, err
		}
	}
	return &planner.CommandResult{Command: command, ExitCode: r.exitCode}, nil
}

func newTestInvoker(t *testing.T, runner planner.CommandRunner) *planner.Invoker {
	t.Helper()
	dir, err := artifact.NewDir(t.TempDir())
	require.NoError(t, err)
	inv, err := planner.NewInvoker(planner.Config{}, dir, planner.WithRunner(runner))
	require.NoError(t, err)
	return inv
}

func newTestRunner(t *testing.T, mock *adapter.MockAdapter, cfg *config.Config) (*Runner, *State) {
	t.Helper()
	g, err := scene.ParseGraph([]byte(livingRoomGraph))
	require.NoError(t, err)
	registry, err := tool.NewRegistry(tool.FindObject{}, tool.GetRelations{})
	require.NoError(t, err)
	dispatcher := tool.NewDispatcher(registry, g, &scene.Resources{})
	runner := NewRunner(map[string]adapter.Adapter{"mock": mock}, registry, dispatcher, cfg, nil, nil)
	return runner, NewState(g)
}

func goalSpec(maxIterations int) StageSpec {
	return StageSpec{
		Name:           config.StageGoalInterpretation,
		SystemPrompt:   "interpret",
		Kickoff:        "Turn on the tv.",
		Tools:          []string{tool.FindObjectName, tool.GetRelationsName},
		MaxIterations:  maxIterations,
		Terminator:     flow.RequiredKeys(schema.GoalInterpretationKeys...),
		RepairFeedback: true,
		RequiredKeys:   schema.GoalInterpretationKeys,
		Target:         config.RouteTarget{Adapter: "mock", Model: "mock-1"},
	}
}
