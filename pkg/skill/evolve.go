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

package skill

import (
	"context"
	"fmt"
	"os"

	"github.com/matsci/orchestrator/pkg/orcherr"
)

// SandboxTester runs a candidate skill in isolation and reports whether it
// passes. The real implementation is the external filesystem/shell
// execution session (a black box per spec §1); this package only defines
// the contract Evolve requires.
type SandboxTester interface {
	Test(ctx context.Context, candidate *Entry) error
}

// FileSandboxTester is the minimal default: it verifies SKILL.md parses and,
// for operator skills, that every referenced script exists and is
// non-empty. It performs no execution — a real sandbox runner (wired to the
// execution session) should replace it whenever one is available. This is
// intentionally a syntax-only gate, not a behavioral one.
type FileSandboxTester struct{}

// Test implements SandboxTester.
func (FileSandboxTester) Test(ctx context.Context, candidate *Entry) error {
	if candidate.Name == "" || candidate.Description == "" {
		return fmt.Errorf("skill: candidate missing name or description")
	}
	if candidate.SkillType == TypeOperator {
		if len(candidate.Scripts) == 0 {
			return fmt.Errorf("skill: operator skill %q bundles no scripts", candidate.Name)
		}
		for _, script := range candidate.Scripts {
			info, err := os.Stat(script)
			if err != nil {
				return fmt.Errorf("skill: script %s: %w", script, err)
			}
			if info.Size() == 0 {
				return fmt.Errorf("skill: script %s is empty", script)
			}
		}
	}
	return nil
}

// Evolve implements the Skill Evolution flow supplemented from
// skill_evolution_exp.py (spec §12): when the agent authors a new skill
// directory (SKILL.md plus scripts/) under workspace/new_skill, Evolve
// parses it, runs it through tester, and only registers it in reg on a
// pass. A failing candidate is returned as an error and never reaches the
// registry — "dynamic skill registration requires a sandbox test pass
// before insertion" (spec §4.J).
func Evolve(ctx context.Context, reg *Registry, tester SandboxTester, workspaceNewSkillDir string) (*Entry, error) {
	if tester == nil {
		tester = FileSandboxTester{}
	}

	candidate, err := ParseFile(workspaceNewSkillDir)
	if err != nil {
		return nil, orcherr.Adaptor("skill_evolution", "parse candidate skill", err)
	}

	if err := tester.Test(ctx, candidate); err != nil {
		return nil, orcherr.Adaptor("skill_evolution", "sandbox test failed", err)
	}

	reg.Register(candidate)
	return candidate, nil
}
