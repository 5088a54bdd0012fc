package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/plangate/pkg/message"
)

func toolResult(name, content string) message.Message {
	return message.ToolResult(message.ToolCall{ID: "c1", Name: name}, content)
}

func TestRequiredKeys(t *testing.T) {
	term := RequiredKeys("goals", "relevant_objects", "final_actions")

	tests := []struct {
		name string
		msg  message.Message
		want Verdict
	}{
		{name: "complete", msg: message.Assistant(`{"goals": [], "relevant_objects": [], "final_actions": []}`), want: Success},
		{name: "aliases", msg: message.Assistant(`{"goals": [], "relevant objects": [], "final actions": []}`), want: Success},
		{name: "reasoning stripped", msg: message.Assistant("<think>hmm</think>\n{\"goals\": [], \"relevant_objects\": [], \"final_actions\": []}"), want: Success},
		{name: "missing key", msg: message.Assistant(`{"goals": []}`), want: Continue},
		{name: "not json", msg: message.Assistant("Let me look around first."), want: Continue},
		{name: "array", msg: message.Assistant(`[]`), want: Continue},
		{name: "tool result", msg: toolResult("find_object", `{"goals": [], "relevant_objects": [], "final_actions": []}`), want: Continue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(term, Observe(tt.msg)).Verdict)
		})
	}
}

func TestMissingKeys(t *testing.T) {
	missing, err := MissingKeys(Observe(message.Assistant(`{"output": []}`)), "necessity_to_use_action", "output")
	require.Error(t, err)
	assert.Equal(t, []string{"necessity_to_use_action"}, missing)

	_, err = MissingKeys(Observe(message.Assistant("nope")), "output")
	assert.Error(t, err)

	missing, err = MissingKeys(Observe(message.Assistant(`{"output": []}`)), "output")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPlanningTerminator(t *testing.T) {
	term := PlanningTerminator("plan_from_pddl", "")

	tests := []struct {
		name string
		msg  message.Message
		want Verdict
	}{
		{name: "plan found", msg: toolResult("plan_from_pddl", "Success: (walk robot tv)"), want: Success},
		{name: "partial", msg: toolResult("plan_from_pddl", "Partly successful termination: at least one plan was found and another component ran out of memory."), want: Fail},
		{name: "unsolvable", msg: toolResult("plan_from_pddl", "Unsuccessful, but error-free termination: task is unsolvable."), want: Fail},
		{name: "parse error", msg: toolResult("plan_from_pddl", "PDDL parsing error: Missing domain.pddl"), want: Continue},
		{name: "resource limit", msg: toolResult("plan_from_pddl", "Expected failures which prevent the execution of further components: OOM / Timeout."), want: Continue},
		{name: "refusal", msg: toolResult("plan_from_pddl", "You've reached the limit of planner calls (3). The plan is considered infeasible."), want: Continue},
		{name: "other tool success text", msg: toolResult("find_object", "Success: not a plan"), want: Continue},
		{name: "sentinel", msg: message.Assistant("I cannot do this. __plan_unsolvable__"), want: Fail},
		{name: "sentinel only in reasoning", msg: message.Assistant("<think>maybe __plan_unsolvable__</think>let me retry"), want: Continue},
		{name: "plain answer", msg: message.Assistant("working on it"), want: Continue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(term, Observe(tt.msg)).Verdict)
		})
	}
}

func TestEvaluateRecoversPanics(t *testing.T) {
	boom := TerminatorFunc(func(Observation) Decision { panic("boom") })
	d := Evaluate(boom, Observe(message.Assistant("{}")))
	assert.Equal(t, Continue, d.Verdict)
}

func TestMachineTransitions(t *testing.T) {
	m := NewMachine("gi", "sd", "as")
	name, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "gi", name)

	st, err := m.Advance(SucceedWith("ok"))
	require.NoError(t, err)
	assert.Equal(t, "running(1)", st.String())

	_, err = m.Advance(ContinueWith("x"))
	assert.Error(t, err)

	_, err = m.Advance(SucceedWith("ok"))
	require.NoError(t, err)
	st, err = m.Advance(SucceedWith("plan_found"))
	require.NoError(t, err)
	assert.Equal(t, PhaseSuccess, st.Phase)
	assert.True(t, st.Terminal())

	_, err = m.Advance(FailWith("late"))
	assert.Error(t, err)
	assert.Equal(t, PhaseSuccess, m.State().Phase)
}

func TestMachineFailIsAbsorbing(t *testing.T) {
	m := NewMachine("gi", "sd", "as")
	st, err := m.Advance(FailWith("max_iterations_exceeded"))
	require.NoError(t, err)
	assert.Equal(t, PhaseFail, st.Phase)
	assert.Equal(t, 0, st.Stage)
	assert.Equal(t, "max_iterations_exceeded", st.Reason)

	_, ok := m.Current()
	assert.False(t, ok)
	_, err = m.Advance(SucceedWith("ok"))
	assert.Error(t, err)
}
