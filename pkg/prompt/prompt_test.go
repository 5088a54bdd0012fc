package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBuiltinTemplates(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)

	gi, err := r.Render(GoalInterpretation, GoalInterpretationData{
		Task:          "Watch TV\nTurn on the tv and sit on the sofa.",
		Objects:       "tv, id: 12, states: [OFF]",
		Relations:     "tv (12) IS INSIDE TO livingroom (1)",
		RelationTypes: "INSIDE : object is inside another",
		ActionSpace:   "SWITCHON : turn a device on",
	})
	require.NoError(t, err)
	assert.Contains(t, gi, "Turn on the tv and sit on the sofa.")
	assert.Contains(t, gi, "tv (12) IS INSIDE TO livingroom (1)")
	assert.Contains(t, gi, "SWITCHON : turn a device on")

	sd, err := r.Render(SubgoalDecomposition, SubgoalDecompositionData{
		Task:         "Watch TV",
		Goals:        "ON(tv.12)",
		FinalActions: "WATCH(tv.12)",
		Necessity:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, sd, "Actions must appear in the output: true")
	assert.Contains(t, sd, "WATCH(tv.12)")

	as, err := r.Render(ActionSequencing, ActionSequencingData{
		Subgoals:      "NEXT_TO(character.1, tv.12)\nON(tv.12)",
		Sentinel:      "__plan_unsolvable__",
		PlannerBudget: 3,
	})
	require.NoError(t, err)
	assert.Contains(t, as, "at most 3 times")
	assert.Contains(t, as, "answer with __plan_unsolvable__")
	assert.Contains(t, as, "=== domain.pddl ===")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)
	_, err = r.Render("nope", nil)
	assert.ErrorContains(t, err, "unknown prompt template")
}

func TestOverrideDirectoryReplacesTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "action_sequencing.tmpl"), []byte("subgoals={{.Subgoals}}"), 0o644))

	r, err := New(dir)
	require.NoError(t, err)

	as, err := r.Render(ActionSequencing, ActionSequencingData{Subgoals: "ON(tv.12)"})
	require.NoError(t, err)
	assert.Equal(t, "subgoals=ON(tv.12)", as)

	gi, err := r.Render(GoalInterpretation, GoalInterpretationData{Task: "Wash dishes"})
	require.NoError(t, err)
	assert.Contains(t, gi, "Wash dishes")
}

func TestOverrideDirectoryMustExist(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestBrokenOverrideFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "goal_interpretation.tmpl"), []byte("{{.Task"), 0o644))
	_, err := New(dir)
	assert.ErrorContains(t, err, "parse template")
}
