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
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// HumanGate prompts a human with message and returns their single-line
// response, trimmed. It is the seam that lets the pre-flight gate and the
// per-step confirmation prompt run under test without a real terminal.
type HumanGate interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// StdinGate is the production HumanGate: it writes to out and reads one
// line at a time from in.
type StdinGate struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewStdinGate wraps a reader/writer pair (typically os.Stdin/os.Stdout).
func NewStdinGate(in io.Reader, out io.Writer) *StdinGate {
	return &StdinGate{in: bufio.NewScanner(in), out: out}
}

func (g *StdinGate) Prompt(_ context.Context, message string) (string, error) {
	fmt.Fprint(g.out, message)
	if !g.in.Scan() {
		if err := g.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(g.in.Text()), nil
}

// PreFlight renders plan, prompts the gate for go/abort/revision feedback,
// and loops: "go" approves the plan as-is, "abort" marks it Aborted, an
// empty line re-prompts, and anything else is fed to Revise as human
// feedback before the loop renders the revised plan and prompts again. The
// loop ends the moment a revision comes back Refused.
func PreFlight(ctx context.Context, llm LLM, policy Policy, plan *Plan, gate HumanGate) (*Plan, error) {
	for {
		prompt := RenderPlan(plan) + "\nApprove this plan? (go / abort / or type revision feedback)\n> "
		response, err := gate.Prompt(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("planner: pre-flight gate: %w", err)
		}

		switch strings.ToLower(response) {
		case "":
			continue
		case "go":
			return plan, nil
		case "abort":
			return &Plan{PlanID: plan.PlanID, Status: PlanAborted}, nil
		default:
			revised, err := Revise(ctx, llm, policy, plan, response)
			if err != nil {
				return nil, err
			}
			plan = revised
			if plan.Status == PlanRefused {
				return plan, nil
			}
		}
	}
}

// RenderPlan formats plan as a human-readable step list for the pre-flight
// prompt.
func RenderPlan(plan *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s (%s)\n", plan.PlanID, plan.Status)
	if plan.RefusalReason != "" {
		fmt.Fprintf(&b, "Refusal: %s\n", plan.RefusalReason)
	}
	for _, s := range plan.Steps {
		fmt.Fprintf(&b, "  %d. [%s] %s — %s (confirm=%v, fallback=%q)\n",
			s.StepID, s.ComputeCost, s.ToolName, s.Intent, s.RequiresHumanConfirm, s.FallbackLogic)
	}
	return b.String()
}
