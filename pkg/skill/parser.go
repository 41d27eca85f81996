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
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Filename is the expected file name of a skill definition.
	Filename = "SKILL.md"

	frontMatterDelimiter = "---"
)

// ParseFile reads path/SKILL.md (path being a skill directory) and returns
// its Entry, with Scripts populated from path/scripts.
func ParseFile(dir string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, fmt.Errorf("skill: read %s: %w", Filename, err)
	}
	entry, err := Parse(data, dir)
	if err != nil {
		return nil, err
	}
	entry.Scripts = discoverScripts(dir)
	return entry, nil
}

// Parse splits SKILL.md content into front matter and body, validates the
// required fields, and returns an Entry rooted at dir.
func Parse(data []byte, dir string) (*Entry, error) {
	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("skill: split front matter: %w", err)
	}

	var meta frontMatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return nil, fmt.Errorf("skill: parse front matter: %w", err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("skill: name is required")
	}
	if meta.Description == "" {
		return nil, fmt.Errorf("skill: description is required")
	}
	if meta.SkillType != TypeKnowledge && meta.SkillType != TypeOperator {
		return nil, fmt.Errorf("skill: skill_type must be %q or %q, got %q", TypeKnowledge, TypeOperator, meta.SkillType)
	}

	return &Entry{
		Name:        meta.Name,
		Description: meta.Description,
		SkillType:   meta.SkillType,
		License:     meta.License,
		Path:        dir,
		Content:     strings.TrimSpace(string(body)),
	}, nil
}

// splitFrontMatter separates the leading `---`-delimited YAML block from
// the markdown body, matching the SKILL.md shape produced by both the
// bundled skills and Skill Evolution's dynamically authored ones.
func splitFrontMatter(data []byte) (fm, body []byte, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontMatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening front matter delimiter")
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontMatterDelimiter {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing front matter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return []byte(strings.Join(fmLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// discoverScripts lists scripts/*.{py,sh,js} under dir, per spec §4.J's
// operator-skill script extensions. A missing scripts/ directory yields nil,
// not an error — knowledge skills never have one.
func discoverScripts(dir string) []string {
	scriptsDir := filepath.Join(dir, "scripts")
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if allowedScriptExt[filepath.Ext(e.Name())] {
			out = append(out, filepath.Join(scriptsDir, e.Name()))
		}
	}
	return out
}
