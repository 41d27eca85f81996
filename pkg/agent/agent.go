// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agent drives the turn loop: build a dialog from the system
// prompt, the task, and the trajectory so far; query the language model
// (an external black box behind the LLM interface); dispatch any tool calls
// through the registry; detect termination via the `finish` tool. The
// language model client itself, prompt text, and trajectory serialization
// format beyond the atomic-write mechanics are external collaborators.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matsci/orchestrator/pkg/registry"
	"github.com/matsci/orchestrator/pkg/rundir"
)

// Status is the terminal state of a Run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusExhausted Status = "exhausted"
	StatusFailed    Status = "failed"
)

// Message is one entry in a Dialog.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is one call the LM asked to dispatch.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the observation returned for one ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Text       string `json:"text"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Dialog is the ordered message list sent to the LM for one turn.
type Dialog []Message

// Reply is what the LM returns for one turn.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// LLM is the external black-box language model client: query(dialog) ->
// reply, per spec §1's non-goals.
type LLM interface {
	Query(ctx context.Context, dialog Dialog) (Reply, error)
}

// finishToolName is the single tool call the agent recognizes as a
// termination signal rather than dispatching through the registry.
const finishToolName = "finish"

type finishArgs struct {
	TaskCompleted string `json:"task_completed"`
	Result        string `json:"result"`
}

// Config configures one Agent instance.
type Config struct {
	SystemPrompt string
	MaxTurns     int
	ContextCap   int // max Dialog messages retained; 0 means unbounded
}

// Result is what Run returns.
type Result struct {
	Status     Status
	Turns      int
	FinalText  string
	Trajectory Dialog
}

// Agent drives a single task through the turn loop.
type Agent struct {
	cfg   Config
	llm   LLM
	dir   *registry.ToolDirectory
	rdir  *rundir.Dir
	taskID string
}

// New constructs an Agent wired to dir (the tool directory), llm (the
// language model client), and rdir (for atomic trajectory persistence).
func New(cfg Config, llm LLM, dir *registry.ToolDirectory, rdir *rundir.Dir, taskID string) *Agent {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}
	return &Agent{cfg: cfg, llm: llm, dir: dir, rdir: rdir, taskID: taskID}
}

// Run drives the turn loop for task until termination, max_turns exhaustion,
// or a fatal error.
func (a *Agent) Run(ctx context.Context, task string) (*Result, error) {
	trajectory := Dialog{
		{Role: "system", Content: a.cfg.SystemPrompt},
		{Role: "user", Content: task},
	}

	for turn := 1; turn <= a.cfg.MaxTurns; turn++ {
		dialog := a.windowed(trajectory)

		reply, err := a.llm.Query(ctx, dialog)
		if err != nil {
			return nil, fmt.Errorf("agent: llm query failed on turn %d: %w", turn, err)
		}

		msg := Message{Role: "assistant", Content: reply.Content, ToolCalls: reply.ToolCalls}

		if done, result, ok := extractFinish(reply.ToolCalls); ok {
			msg.ToolResults = []ToolResult{{ToolCallID: "", Text: "acknowledged"}}
			trajectory = append(trajectory, msg)
			if err := a.persist(trajectory); err != nil {
				return nil, err
			}
			if done {
				return &Result{Status: StatusCompleted, Turns: turn, FinalText: result, Trajectory: trajectory}, nil
			}
			// task_completed = partial: continue the loop.
			continue
		}

		if len(reply.ToolCalls) == 0 {
			trajectory = append(trajectory, msg)
			if err := a.persist(trajectory); err != nil {
				return nil, err
			}
			continue
		}

		var results []ToolResult
		for _, call := range reply.ToolCalls {
			obs, _, err := a.dir.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				results = append(results, ToolResult{ToolCallID: call.ID, Text: err.Error(), IsError: true})
				continue
			}
			results = append(results, ToolResult{ToolCallID: call.ID, Text: obs.Text, IsError: obs.IsError})
		}
		msg.ToolResults = results
		trajectory = append(trajectory, msg)

		if err := a.persist(trajectory); err != nil {
			return nil, err
		}
	}

	return &Result{Status: StatusExhausted, Turns: a.cfg.MaxTurns, Trajectory: trajectory}, nil
}

// extractFinish reports whether calls contains a `finish` call, and if so,
// whether task_completed=true (done) or "partial" (not done).
func extractFinish(calls []ToolCall) (done bool, result string, isFinish bool) {
	for _, c := range calls {
		if c.Name != finishToolName {
			continue
		}
		var args finishArgs
		if err := json.Unmarshal(c.Arguments, &args); err != nil {
			return false, "", true
		}
		return args.TaskCompleted == "true" || args.TaskCompleted == "True", args.Result, true
	}
	return false, "", false
}

func (a *Agent) windowed(d Dialog) Dialog {
	if a.cfg.ContextCap <= 0 || len(d) <= a.cfg.ContextCap {
		return d
	}
	// Always keep the system message, then the most recent entries.
	kept := make(Dialog, 0, a.cfg.ContextCap)
	kept = append(kept, d[0])
	tailStart := len(d) - (a.cfg.ContextCap - 1)
	kept = append(kept, d[tailStart:]...)
	return kept
}

func (a *Agent) persist(trajectory Dialog) error {
	if a.rdir == nil {
		return nil
	}
	return rundir.WriteJSONAtomic(a.rdir.TrajectoryPath(a.taskID), trajectory)
}
