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

// Package skill discovers bundled and dynamically-produced tool-like
// skills from a directory tree: each skill is a directory carrying a
// SKILL.md with YAML front matter, optionally bundling runnable scripts
// under scripts/. Both kinds reach the agent loop through the registry's
// search and get lookup tools (RegisterTools); an operator skill's scripts
// are listed on its Entry but are not registered as callable tools.
package skill

// Type distinguishes a knowledge skill (reference text) from an operator
// skill (bundles runnable scripts).
type Type string

const (
	TypeKnowledge Type = "knowledge"
	TypeOperator  Type = "operator"
)

// frontMatter is the YAML document expected at the top of SKILL.md.
type frontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	SkillType   Type   `yaml:"skill_type"`
	License     string `yaml:"license,omitempty"`
}

// Entry is one discovered skill.
type Entry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SkillType   Type     `json:"skill_type"`
	License     string   `json:"license,omitempty"`
	Path        string   `json:"path"`
	Content     string   `json:"content"`
	Scripts     []string `json:"scripts,omitempty"`
}

// allowedScriptExt is the set of extensions an operator skill's scripts/
// directory may contain, per spec §4.J.
var allowedScriptExt = map[string]bool{
	".py": true,
	".sh": true,
	".js": true,
}
