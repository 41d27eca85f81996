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

package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/matsci/orchestrator/pkg/rundir"
)

// StepExecutor runs a single plan step's task (formatted by Execute) and
// returns a short human-readable result summary. A *solver.Solver, wrapped
// to flatten its *agent.Result down to a summary string, is the runtime's
// production implementation.
type StepExecutor interface {
	Execute(ctx context.Context, task string) (summary string, err error)
}

// Execute runs every step of state.Plan that is not already Done, in
// step_id order. Each step gets its own workspace directory; research_state
// is persisted atomically after every step, success or failure, so a crash
// mid-plan never loses more than the in-flight step. A step failure is
// recorded in history and execution continues to the next step — one bad
// step never aborts the whole plan.
func Execute(ctx context.Context, dir *rundir.Dir, taskID string, state *State, executor StepExecutor, gate HumanGate) error {
	statePath, err := dir.ResearchStatePath(taskID)
	if err != nil {
		return fmt.Errorf("planner: resolve research state path: %w", err)
	}

	for i := range state.Plan.Steps {
		step := &state.Plan.Steps[i]
		if step.Status == StepDone {
			continue
		}

		if step.RequiresHumanConfirm || step.ComputeCost == ComputeHigh {
			answer, err := gate.Prompt(ctx, fmt.Sprintf(
				"Step %d (%s) requires confirmation: %s\nProceed? (y/n)\n> ", step.StepID, step.ToolName, step.Intent))
			if err != nil {
				return fmt.Errorf("planner: step %d confirmation: %w", step.StepID, err)
			}
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				step.Status = StepSkipped
				if err := rundir.WriteJSONAtomic(statePath, state); err != nil {
					return fmt.Errorf("planner: persist state after skip: %w", err)
				}
				continue
			}
		}

		if _, err := dir.StepWorkspacePath(taskID, step.StepID); err != nil {
			return fmt.Errorf("planner: step %d workspace: %w", step.StepID, err)
		}

		task := fmt.Sprintf("Use tool %q to: %s. Fallback: %s", step.ToolName, step.Intent, step.FallbackLogic)
		summary, execErr := executor.Execute(ctx, task)

		entry := StepHistoryEntry{StepID: step.StepID, ToolName: step.ToolName, Intent: step.Intent}
		if execErr != nil {
			step.Status = StepFailed
			entry.Error = execErr.Error()
		} else {
			step.Status = StepDone
			entry.ResultSummary = summary
		}
		state.History = append(state.History, entry)

		if err := rundir.WriteJSONAtomic(statePath, state); err != nil {
			return fmt.Errorf("planner: persist state after step %d: %w", step.StepID, err)
		}
	}

	return nil
}
