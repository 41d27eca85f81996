package resilient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matsci/orchestrator/pkg/agent"
)

type fakeSolver struct {
	calls   int
	replies []*agent.Result
}

func (f *fakeSolver) Solve(ctx context.Context, task string) (*agent.Result, error) {
	r := f.replies[f.calls]
	f.calls++
	return r, nil
}

func trajectoryWithSubmit(jobID string) agent.Dialog {
	return agent.Dialog{
		{
			Role: "assistant",
			ToolCalls: []agent.ToolCall{
				{ID: "1", Name: "dft_submit_job"},
			},
			ToolResults: []agent.ToolResult{
				{ToolCallID: "1", Text: `{"job_id":"` + jobID + `"}`},
			},
		},
	}
}

type scriptedPoller struct {
	statuses []JobStatus
	i        int
}

func (p *scriptedPoller) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	s := p.statuses[p.i]
	p.i++
	return s, nil
}

type fixedFetcher struct{ payload json.RawMessage }

func (f fixedFetcher) Fetch(ctx context.Context, jobID string) (json.RawMessage, error) {
	return f.payload, nil
}

type fixedDiagnoser struct{ code string }

func (d fixedDiagnoser) Diagnose(ctx context.Context, jobID string) (string, error) {
	return d.code, nil
}

func TestRunSucceedsWithoutRetry(t *testing.T) {
	solver := &fakeSolver{replies: []*agent.Result{
		{Status: agent.StatusCompleted, Trajectory: trajectoryWithSubmit("J1")},
	}}
	poller := &scriptedPoller{statuses: []JobStatus{StatusDone}}
	fetcher := fixedFetcher{payload: json.RawMessage(`{"energy":-12.3}`)}

	e := New(Config{}, solver, poller, fetcher, fixedDiagnoser{})
	payload, state, err := e.Run(context.Background(), "run a calculation")

	require.NoError(t, err)
	require.JSONEq(t, `{"energy":-12.3}`, string(payload))
	require.Equal(t, 0, state.Retries)
	require.Equal(t, "J1", state.JobID)
}

// TestRunRetriesAfterDiagnosedFailure exercises spec.md §8 scenario 4: a
// Failed status triggers diagnosis, a config-driven fix, resubmission, and
// exactly one retry before success.
func TestRunRetriesAfterDiagnosedFailure(t *testing.T) {
	solver := &fakeSolver{replies: []*agent.Result{
		{Status: agent.StatusCompleted, Trajectory: trajectoryWithSubmit("J1")},
		{Status: agent.StatusCompleted, Trajectory: trajectoryWithSubmit("J2")},
	}}
	poller := &scriptedPoller{statuses: []JobStatus{StatusFailed, StatusDone}}
	fetcher := fixedFetcher{payload: json.RawMessage(`{"energy":-9.8}`)}
	diag := fixedDiagnoser{code: "OOM"}

	cfg := Config{
		ErrorHandlers: map[string][]FixAction{
			"OOM": {{Set: "mem=64G"}},
		},
	}
	e := New(cfg, solver, poller, fetcher, diag)
	payload, state, err := e.Run(context.Background(), "run a calculation")

	require.NoError(t, err)
	require.JSONEq(t, `{"energy":-9.8}`, string(payload))
	require.Equal(t, 1, state.Retries)
	require.Equal(t, "J2", state.JobID)
	require.Equal(t, "OOM", state.LastDiagnosis)
}

func TestRunAbortsOnUnknownStatus(t *testing.T) {
	solver := &fakeSolver{replies: []*agent.Result{
		{Status: agent.StatusCompleted, Trajectory: trajectoryWithSubmit("J1")},
	}}
	poller := &scriptedPoller{statuses: []JobStatus{StatusUnknown}}

	e := New(Config{}, solver, poller, fixedFetcher{}, fixedDiagnoser{})
	_, _, err := e.Run(context.Background(), "run a calculation")

	require.Error(t, err)
}

func TestRunAbortsOnUnhandledErrorCode(t *testing.T) {
	solver := &fakeSolver{replies: []*agent.Result{
		{Status: agent.StatusCompleted, Trajectory: trajectoryWithSubmit("J1")},
	}}
	poller := &scriptedPoller{statuses: []JobStatus{StatusFailed}}
	diag := fixedDiagnoser{code: "SEGFAULT"}

	e := New(Config{ErrorHandlers: map[string][]FixAction{"OOM": {{Set: "mem=64G"}}}}, solver, poller, fixedFetcher{}, diag)
	_, _, err := e.Run(context.Background(), "run a calculation")

	require.Error(t, err)
}

func TestRunTreatsNoSubmitAsSynchronous(t *testing.T) {
	solver := &fakeSolver{replies: []*agent.Result{
		{Status: agent.StatusCompleted, FinalText: `{"direct":"result"}`, Trajectory: agent.Dialog{}},
	}}
	e := New(Config{}, solver, &scriptedPoller{}, fixedFetcher{}, fixedDiagnoser{})

	payload, state, err := e.Run(context.Background(), "quick lookup")
	require.NoError(t, err)
	require.Equal(t, `{"direct":"result"}`, string(payload))
	require.Equal(t, "", state.JobID)
}
