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

import "strings"

// Policy is the immutable embedded license/policy block (the CRP in the
// glossary) prepended to the planner's system context and checked by the
// watchdog. It is a Go literal, loaded once at program start and never
// mutated — revisions are a new deployment, not a config toggle.
type Policy struct {
	LicenseAllowlist []string
	BlockList        []string
	// PreferredTools maps a block-listed identifier (lowercase) to the
	// preferred in-house tool the watchdog suggests in its refusal message.
	PreferredTools map[string]string
}

// DefaultPolicy is the runtime's embedded policy: a conservative
// materials-science license allow-list, a block-list of software this
// runtime is not licensed to invoke, and the preferred in-house alternative
// for each blocked identifier.
var DefaultPolicy = Policy{
	LicenseAllowlist: []string{"quantum-espresso", "lammps", "gpaw", "dftb+"},
	BlockList:        []string{"VASP", "Gaussian", "CASTEP"},
	PreferredTools: map[string]string{
		"vasp":     "run_quantum_espresso",
		"gaussian": "run_orca",
		"castep":   "run_quantum_espresso",
	},
}

// matchBlockList reports whether haystack (case-insensitive) contains any
// block-listed identifier as a whole word, and which one matched.
func (p Policy) matchBlockList(haystack string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, blocked := range p.BlockList {
		if containsWord(lower, strings.ToLower(blocked)) {
			return blocked, true
		}
	}
	return "", false
}

func containsWord(haystack, word string) bool {
	if word == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
