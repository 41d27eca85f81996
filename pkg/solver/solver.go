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

// Package solver implements the Direct Solver: a thin wrapper that invokes
// the agent once with a free-form task and returns its terminal result. It
// is the leaf executor the Plan-Execute Engine and the Resilient Calc
// Engine both call into.
package solver

import (
	"context"

	"github.com/matsci/orchestrator/pkg/agent"
)

// Solver wraps an *agent.Agent for single-shot invocation.
type Solver struct {
	agent *agent.Agent
}

// New wraps a configured agent.
func New(a *agent.Agent) *Solver {
	return &Solver{agent: a}
}

// Solve runs the agent once with task and returns its terminal result.
func (s *Solver) Solve(ctx context.Context, task string) (*agent.Result, error) {
	return s.agent.Run(ctx, task)
}
