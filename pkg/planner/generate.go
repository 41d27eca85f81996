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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// LLM is the planner's black-box language model client: a single prompt in,
// raw text out. It is intentionally narrower than agent.LLM — the planner
// never dispatches tool calls itself, it only asks for plan JSON.
type LLM interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// Generate builds the planner prompt (runtime context + tool list +
// embedded policy), queries the LLM for a single JSON object, extracts the
// first balanced `{...}` region, and normalizes + validates the result.
func Generate(ctx context.Context, llm LLM, policy Policy, rc RuntimeContext, toolNames []string, systemPrompt string) (*Plan, error) {
	prompt := BuildPrompt(systemPrompt, policy, rc, toolNames)

	raw, err := llm.Query(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner: llm query failed: %w", err)
	}

	jsonText, ok := ExtractBalancedJSON(raw)
	if !ok {
		return refused(newPlanID(), "Invalid JSON"), nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return refused(newPlanID(), "Invalid JSON"), nil
	}

	plan, err := Normalize(parsed, rc.MaxSteps)
	if err != nil {
		return refused(newPlanID(), err.Error()), nil
	}
	if plan.PlanID == "" {
		plan.PlanID = newPlanID()
	}

	return Validate(plan, policy), nil
}

// Revise re-prompts the LLM with the current plan and human feedback, then
// re-enters the same normalize+validate pipeline. Revise has no
// RuntimeContext, so it normalizes with a step cap of len(plan.Steps)+1000;
// a revised plan is not clamped to the run's max_steps.
func Revise(ctx context.Context, llm LLM, policy Policy, plan *Plan, feedback string) (*Plan, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("planner: marshal plan for revision: %w", err)
	}

	prompt := fmt.Sprintf(
		"The following plan was proposed:\n%s\n\nHuman feedback: %s\n\nRevise the plan and return a single JSON object.",
		string(planJSON), feedback)

	raw, err := llm.Query(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner: llm revise query failed: %w", err)
	}

	jsonText, ok := ExtractBalancedJSON(raw)
	if !ok {
		return refused(plan.PlanID, "Invalid JSON"), nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return refused(plan.PlanID, "Invalid JSON"), nil
	}

	revised, err := Normalize(parsed, len(plan.Steps)+1000)
	if err != nil {
		return refused(plan.PlanID, err.Error()), nil
	}
	revised.PlanID = plan.PlanID
	return Validate(revised, policy), nil
}

// BuildPrompt assembles the planner's system context: the planner system
// prompt, the runtime context object, the full list of currently-registered
// tool names, then the immutable embedded policy (license allow-list,
// block-list, and the preferred alternative for each blocked identifier).
func BuildPrompt(systemPrompt string, policy Policy, rc RuntimeContext, toolNames []string) string {
	rcJSON, _ := json.Marshal(rc)

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nRuntime context: ")
	b.Write(rcJSON)
	b.WriteString("\n\nAvailable tools: ")
	b.WriteString(strings.Join(toolNames, ", "))
	b.WriteString("\n\nLicense allow-list: ")
	b.WriteString(strings.Join(policy.LicenseAllowlist, ", "))
	b.WriteString("\nBlocked software: ")
	b.WriteString(strings.Join(policy.BlockList, ", "))
	if len(policy.PreferredTools) > 0 {
		keys := make([]string, 0, len(policy.PreferredTools))
		for k := range policy.PreferredTools {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nPreferred alternatives: ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s -> %s", k, policy.PreferredTools[k])
		}
	}
	b.WriteString("\n\nRespond with a single JSON object describing the plan.")
	return b.String()
}

// ExtractBalancedJSON finds the first balanced `{...}` region in text,
// optionally stripped from a fenced code block, per spec §4.H.
func ExtractBalancedJSON(text string) (string, bool) {
	text = stripFence(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(trimmed[:nl])
		if firstLine == "" || strings.EqualFold(firstLine, "json") {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func newPlanID() string {
	return uuid.NewString()
}
