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

import "fmt"

// Normalize accepts the raw parsed plan document — either the external LLM
// field names (scientific_intent, compute_intensity, requires_confirmation,
// fallback_strategy, tool/tool_name) or the runtime's own internal field
// names (intent, compute_cost, requires_human_confirm, fallback_logic,
// tool_name) under either a top-level "steps" or "execution_graph" key —
// and produces a Plan with dense step IDs starting at 1, every step's
// status reset to Pending, and the step count clamped to maxSteps.
//
// Normalize is a pure function of its input: feeding it an already
// normalized plan (round-tripped through Plan.toMap) yields the same
// result, which is what makes it idempotent.
func Normalize(raw map[string]any, maxSteps int) (*Plan, error) {
	rawSteps, ok := extractStepList(raw)
	if !ok || len(rawSteps) == 0 {
		return nil, fmt.Errorf("planner: plan document has no steps")
	}

	if maxSteps > 0 && len(rawSteps) > maxSteps {
		rawSteps = rawSteps[:maxSteps]
	}

	steps := make([]Step, 0, len(rawSteps))
	for i, entry := range rawSteps {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("planner: step %d is not a JSON object", i+1)
		}
		steps = append(steps, Step{
			StepID:               i + 1,
			ToolName:             firstString(m, "tool_name", "tool"),
			Intent:               firstString(m, "intent", "scientific_intent"),
			ComputeCost:          ComputeCost(firstString(m, "compute_cost", "compute_intensity")),
			RequiresHumanConfirm: firstBool(m, "requires_human_confirm", "requires_confirmation"),
			FallbackLogic:        firstString(m, "fallback_logic", "fallback_strategy"),
			Status:               StepPending,
		})
	}

	plan := &Plan{
		PlanID:        firstString(raw, "plan_id"),
		Status:        PlanApproved,
		StrategyName:  firstString(raw, "strategy_name"),
		FidelityLevel: Fidelity(firstString(raw, "fidelity_level")),
		Steps:         steps,
	}
	return plan, nil
}

// extractStepList reads the step array from either "steps" or
// "execution_graph", preferring "steps" when both are present.
func extractStepList(raw map[string]any) ([]any, bool) {
	if v, ok := raw["steps"]; ok {
		if list, ok := v.([]any); ok {
			return list, true
		}
	}
	if v, ok := raw["execution_graph"]; ok {
		if list, ok := v.([]any); ok {
			return list, true
		}
	}
	return nil, false
}

// firstString returns the first non-empty string value found under any of
// keys, or "" if none match.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// firstBool returns the first bool-ish value found under any of keys.
// LLM output and JSON round-trips both show up as either a real bool or a
// "true"/"false" string, so both are accepted.
func firstBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t
		case string:
			return t == "true"
		}
	}
	return false
}
