package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matsci/orchestrator/pkg/rundir"
)

func samplePlanJSON() map[string]any {
	return map[string]any{
		"steps": []any{
			map[string]any{
				"tool_name":             "run_quantum_espresso",
				"scientific_intent":     "relax the bulk structure",
				"compute_intensity":     "Medium",
				"requires_confirmation": false,
				"fallback_strategy":     "retry with looser convergence",
			},
		},
	}
}

func TestNormalizeAcceptsExternalFieldNames(t *testing.T) {
	plan, err := Normalize(samplePlanJSON(), 10)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, "run_quantum_espresso", plan.Steps[0].ToolName)
	require.Equal(t, "relax the bulk structure", plan.Steps[0].Intent)
	require.Equal(t, ComputeMedium, plan.Steps[0].ComputeCost)
	require.Equal(t, "retry with looser convergence", plan.Steps[0].FallbackLogic)
	require.Equal(t, StepPending, plan.Steps[0].Status)
	require.Equal(t, 1, plan.Steps[0].StepID)
}

func TestNormalizeAcceptsExecutionGraphKey(t *testing.T) {
	raw := map[string]any{
		"execution_graph": []any{
			map[string]any{"tool_name": "a", "intent": "x"},
			map[string]any{"tool_name": "b", "intent": "y"},
		},
	}
	plan, err := Normalize(raw, 10)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	require.Equal(t, 1, plan.Steps[0].StepID)
	require.Equal(t, 2, plan.Steps[1].StepID)
}

func TestNormalizeClampsToMaxSteps(t *testing.T) {
	raw := map[string]any{
		"steps": []any{
			map[string]any{"tool_name": "a"},
			map[string]any{"tool_name": "b"},
			map[string]any{"tool_name": "c"},
		},
	}
	plan, err := Normalize(raw, 2)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
}

func TestNormalizeRejectsEmptyStepList(t *testing.T) {
	_, err := Normalize(map[string]any{"steps": []any{}}, 10)
	require.Error(t, err)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first, err := Normalize(samplePlanJSON(), 10)
	require.NoError(t, err)
	first.PlanID = "fixed-id"

	asMap, err := first.toMap()
	require.NoError(t, err)

	second, err := Normalize(asMap, 10)
	require.NoError(t, err)
	second.PlanID = "fixed-id"

	require.Equal(t, first, second)
}

func TestValidateRefusesBlockedSoftware(t *testing.T) {
	plan := &Plan{
		PlanID: "p1",
		Status: PlanApproved,
		Steps: []Step{
			{StepID: 1, ToolName: "run_vasp", Intent: "run VASP std calculation", Status: StepPending},
		},
	}
	result := Validate(plan, DefaultPolicy)
	require.Equal(t, PlanRefused, result.Status)
	require.Contains(t, result.RefusalReason, "VASP")
	require.Contains(t, result.RefusalReason, "run_quantum_espresso")
}

func TestValidateApprovesCleanPlan(t *testing.T) {
	plan := &Plan{
		PlanID: "p1",
		Status: PlanApproved,
		Steps: []Step{
			{StepID: 1, ToolName: "run_quantum_espresso", Intent: "relax structure", Status: StepPending},
		},
	}
	result := Validate(plan, DefaultPolicy)
	require.Equal(t, PlanApproved, result.Status)
}

type scriptedGate struct {
	responses []string
	i         int
}

func (g *scriptedGate) Prompt(_ context.Context, _ string) (string, error) {
	r := g.responses[g.i]
	g.i++
	return r, nil
}

type revisingLLM struct{}

func (revisingLLM) Query(_ context.Context, _ string) (string, error) {
	return `{"steps":[{"tool_name":"run_quantum_espresso","intent":"revised"}]}`, nil
}

func TestPreFlightGoApprovesImmediately(t *testing.T) {
	plan := &Plan{PlanID: "p1", Status: PlanApproved, Steps: []Step{{StepID: 1, ToolName: "t", Intent: "i"}}}
	gate := &scriptedGate{responses: []string{"go"}}
	result, err := PreFlight(context.Background(), revisingLLM{}, DefaultPolicy, plan, gate)
	require.NoError(t, err)
	require.Equal(t, PlanApproved, result.Status)
}

func TestPreFlightAbortMarksPlanAborted(t *testing.T) {
	plan := &Plan{PlanID: "p1", Status: PlanApproved}
	gate := &scriptedGate{responses: []string{"abort"}}
	result, err := PreFlight(context.Background(), revisingLLM{}, DefaultPolicy, plan, gate)
	require.NoError(t, err)
	require.Equal(t, PlanAborted, result.Status)
}

func TestPreFlightEmptyResponseReprompts(t *testing.T) {
	plan := &Plan{PlanID: "p1", Status: PlanApproved}
	gate := &scriptedGate{responses: []string{"", "go"}}
	result, err := PreFlight(context.Background(), revisingLLM{}, DefaultPolicy, plan, gate)
	require.NoError(t, err)
	require.Equal(t, PlanApproved, result.Status)
}

func TestPreFlightFeedbackTriggersRevision(t *testing.T) {
	plan := &Plan{PlanID: "p1", Status: PlanApproved, Steps: []Step{{StepID: 1, ToolName: "old", Intent: "old"}}}
	gate := &scriptedGate{responses: []string{"use quantum espresso instead", "go"}}
	result, err := PreFlight(context.Background(), revisingLLM{}, DefaultPolicy, plan, gate)
	require.NoError(t, err)
	require.Equal(t, PlanApproved, result.Status)
	require.Equal(t, "revised", result.Steps[0].Intent)
	require.Equal(t, "p1", result.PlanID)
}

type fakeExecutor struct {
	calls []string
	fail  map[int]bool
	n     int
}

func (f *fakeExecutor) Execute(_ context.Context, task string) (string, error) {
	f.n++
	f.calls = append(f.calls, task)
	if f.fail[f.n] {
		return "", errNo
	}
	return "ok", nil
}

var errNo = errors.New("forced failure")

func TestExecuteRunsOnlyNonDoneStepsAndPersistsAfterEachStep(t *testing.T) {
	dir, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	state := &State{
		Goal: "make a material",
		Plan: &Plan{
			PlanID: "p1",
			Status: PlanApproved,
			Steps: []Step{
				{StepID: 1, ToolName: "a", Status: StepDone},
				{StepID: 2, ToolName: "b", Status: StepDone},
				{StepID: 3, ToolName: "c", Status: StepDone},
				{StepID: 4, ToolName: "d", Status: StepPending},
				{StepID: 5, ToolName: "e", Status: StepPending},
			},
		},
	}

	exec := &fakeExecutor{}
	gate := &scriptedGate{}
	err = Execute(context.Background(), dir, "task-resume", state, exec, gate)
	require.NoError(t, err)

	require.Len(t, exec.calls, 2)
	require.Equal(t, StepDone, state.Plan.Steps[3].Status)
	require.Equal(t, StepDone, state.Plan.Steps[4].Status)
	require.Len(t, state.History, 2)

	statePath, err := dir.ResearchStatePath("task-resume")
	require.NoError(t, err)
	var persisted State
	require.NoError(t, rundir.ReadJSON(statePath, &persisted))
	require.Equal(t, StepDone, persisted.Plan.Steps[4].Status)
}

func TestExecuteSkipsStepOnDecline(t *testing.T) {
	dir, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	state := &State{
		Goal: "g",
		Plan: &Plan{PlanID: "p1", Steps: []Step{
			{StepID: 1, ToolName: "expensive", RequiresHumanConfirm: true, Status: StepPending},
		}},
	}
	exec := &fakeExecutor{}
	gate := &scriptedGate{responses: []string{"n"}}
	err = Execute(context.Background(), dir, "task-decline", state, exec, gate)
	require.NoError(t, err)
	require.Equal(t, StepSkipped, state.Plan.Steps[0].Status)
	require.Empty(t, exec.calls)
}

func TestResumeReusesExistingPlanOnMatchingGoal(t *testing.T) {
	dir, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	original := &State{
		Goal: "synthesize widget",
		Plan: &Plan{PlanID: "p1", Steps: []Step{
			{StepID: 1, Status: StepDone},
			{StepID: 2, Status: StepPending},
		}},
	}
	statePath, err := dir.ResearchStatePath("task-r")
	require.NoError(t, err)
	require.NoError(t, rundir.WriteJSONAtomic(statePath, original))

	resumed, ok, err := Resume(dir, "task-r", "synthesize widget")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "p1", resumed.Plan.PlanID)
	require.Equal(t, StepDone, resumed.Plan.Steps[0].Status)
}

func TestResumeIgnoresStateWithDifferentGoal(t *testing.T) {
	dir, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	original := &State{Goal: "old goal", Plan: &Plan{PlanID: "p1", Steps: []Step{{StepID: 1}}}}
	statePath, err := dir.ResearchStatePath("task-r2")
	require.NoError(t, err)
	require.NoError(t, rundir.WriteJSONAtomic(statePath, original))

	_, ok, err := Resume(dir, "task-r2", "new goal")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResumeReturnsFalseWhenNoStateExists(t *testing.T) {
	dir, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := Resume(dir, "task-fresh", "anything")
	require.NoError(t, err)
	require.False(t, ok)
}
