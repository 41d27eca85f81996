package agent

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matsci/orchestrator/pkg/registry"
	"github.com/matsci/orchestrator/pkg/rundir"
)

type scriptedLLM struct {
	replies []Reply
	calls   int
}

func (s *scriptedLLM) Query(ctx context.Context, dialog Dialog) (Reply, error) {
	r := s.replies[s.calls]
	s.calls++
	return r, nil
}

func finishCall(completed string) ToolCall {
	args, _ := json.Marshal(finishArgs{TaskCompleted: completed, Result: "done"})
	return ToolCall{ID: "1", Name: "finish", Arguments: args}
}

func TestAgentTerminatesOnFinishTrue(t *testing.T) {
	llm := &scriptedLLM{replies: []Reply{{ToolCalls: []ToolCall{finishCall("true")}}}}
	dir := registry.NewToolDirectory()
	rd, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	a := New(Config{SystemPrompt: "sys", MaxTurns: 5}, llm, dir, rd, "task-1")
	result, err := a.Run(context.Background(), "do the thing")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, 1, result.Turns)

	data, err := os.ReadFile(rd.TrajectoryPath("task-1"))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestAgentContinuesOnPartial(t *testing.T) {
	llm := &scriptedLLM{replies: []Reply{
		{ToolCalls: []ToolCall{finishCall("partial")}},
		{ToolCalls: []ToolCall{finishCall("true")}},
	}}
	dir := registry.NewToolDirectory()
	rd, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	a := New(Config{MaxTurns: 5}, llm, dir, rd, "task-2")
	result, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, 2, result.Turns)
}

func TestAgentExhaustsMaxTurns(t *testing.T) {
	llm := &scriptedLLM{replies: []Reply{{Content: "thinking"}, {Content: "thinking"}, {Content: "thinking"}}}
	dir := registry.NewToolDirectory()
	rd, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	a := New(Config{MaxTurns: 3}, llm, dir, rd, "task-3")
	result, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Equal(t, StatusExhausted, result.Status)
	require.Equal(t, 3, result.Turns)
}

func TestAgentDispatchesToolCallsThroughRegistry(t *testing.T) {
	dir := registry.NewToolDirectory()
	require.NoError(t, dir.Register(registry.Descriptor{QualifiedName: "s_echo"},
		func(ctx context.Context, raw json.RawMessage) (registry.Observation, registry.Meta, error) {
			return registry.Observation{Text: "echoed"}, registry.Meta{}, nil
		}))

	llm := &scriptedLLM{replies: []Reply{
		{ToolCalls: []ToolCall{{ID: "1", Name: "s_echo", Arguments: json.RawMessage(`{}`)}}},
		{ToolCalls: []ToolCall{finishCall("true")}},
	}}
	rd, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	a := New(Config{MaxTurns: 5}, llm, dir, rd, "task-4")
	result, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, "echoed", result.Trajectory[2].ToolResults[0].Text)
}
