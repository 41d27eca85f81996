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
	"errors"
	"fmt"
	"os"

	"github.com/matsci/orchestrator/pkg/rundir"
)

// Resume looks for a prior research_state.json for taskID. If one exists
// and its recorded goal matches goal exactly, its Plan and History are
// reused as-is and ok is true — the caller must skip re-planning entirely
// and call Execute directly, which will resume from the first non-Done
// step. If no state file exists, ok is false and the caller should
// generate a fresh plan. A state file whose goal differs from goal is
// treated as stale and ignored (ok is false) so a new task never silently
// inherits someone else's plan.
func Resume(dir *rundir.Dir, taskID, goal string) (state *State, ok bool, err error) {
	statePath, err := dir.ResearchStatePath(taskID)
	if err != nil {
		return nil, false, fmt.Errorf("planner: resolve research state path: %w", err)
	}

	var s State
	if err := rundir.ReadJSON(statePath, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("planner: read research state: %w", err)
	}

	if s.Goal != goal || s.Plan == nil || len(s.Plan.Steps) == 0 {
		return nil, false, nil
	}

	return &s, true, nil
}
