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

// Validate is the watchdog: it scans every step's tool name and intent for
// a block-listed identifier (whole-word, case-insensitive) and refuses the
// whole plan the moment one is found, naming the preferred in-house
// alternative in the refusal reason. A plan already Refused (e.g. from a
// JSON extraction failure upstream) passes through unchanged.
func Validate(plan *Plan, policy Policy) *Plan {
	if plan.Status == PlanRefused {
		return plan
	}

	for _, step := range plan.Steps {
		haystack := step.ToolName + " " + step.Intent
		blocked, hit := policy.matchBlockList(haystack)
		if !hit {
			continue
		}
		reason := fmt.Sprintf("step %d requests blocked software %q", step.StepID, blocked)
		if alt, ok := policy.PreferredTools[lowerASCII(blocked)]; ok {
			reason = fmt.Sprintf("%s; use the preferred alternative %q instead", reason, alt)
		}
		return refused(plan.PlanID, reason)
	}

	return plan
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
