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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsci/orchestrator/pkg/registry"
)

// originServer is the synthetic origin_server name under which the skill
// registry's own lookup tools are projected into the ToolDirectory, kept
// distinct from any real tool-provider server name.
const originServer = "skill_library"

// searchTool and getTool are the remote names exposed for the two lookup
// operations; RegisterTools qualifies them the same way the supervisor
// qualifies a remote provider's tools.
const (
	searchTool = "search_skills"
	getTool    = "get_skill"
)

// RegisterTools projects the registry's search and get operations into dir
// as two in-process tools, so an agent can discover and read a skill the
// same way it calls any remote tool — the registry is otherwise unreachable
// from the turn loop. Re-registering after a Watch-triggered Discover is
// unnecessary: both tools read r live on every Invoke.
func (r *Registry) RegisterTools(dir *registry.ToolDirectory) error {
	searchDesc := registry.Descriptor{
		QualifiedName: registry.QualifiedName(originServer, searchTool),
		OriginServer:  originServer,
		RemoteName:    searchTool,
		Description:   "Search the bundled and dynamically-learned skill library by a substring of name or description.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
	}
	if err := dir.Register(searchDesc, r.searchInvoke()); err != nil {
		return fmt.Errorf("skill: register %s: %w", searchTool, err)
	}

	getDesc := registry.Descriptor{
		QualifiedName: registry.QualifiedName(originServer, getTool),
		OriginServer:  originServer,
		RemoteName:    getTool,
		Description:   "Fetch one skill's full SKILL.md body by exact name.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []any{"name"},
		},
	}
	if err := dir.Register(getDesc, r.getInvoke()); err != nil {
		return fmt.Errorf("skill: register %s: %w", getTool, err)
	}
	return nil
}

func (r *Registry) searchInvoke() registry.InvokeFunc {
	return func(_ context.Context, rawArgs json.RawMessage) (registry.Observation, registry.Meta, error) {
		meta := registry.Meta{OriginServer: originServer, RemoteName: searchTool}
		var args struct {
			Query string `json:"query"`
		}
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return registry.Observation{IsError: true, Text: "invalid arguments"}, meta, nil
			}
		}

		matches := r.Search(args.Query)
		if len(matches) == 0 {
			return registry.Observation{Text: "no matching skills"}, meta, nil
		}

		lines := make([]string, 0, len(matches))
		for _, m := range matches {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", m.Name, m.SkillType, m.Description))
		}
		return registry.Observation{Text: strings.Join(lines, "\n")}, meta, nil
	}
}

func (r *Registry) getInvoke() registry.InvokeFunc {
	return func(_ context.Context, rawArgs json.RawMessage) (registry.Observation, registry.Meta, error) {
		meta := registry.Meta{OriginServer: originServer, RemoteName: getTool}
		var args struct {
			Name string `json:"name"`
		}
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return registry.Observation{IsError: true, Text: "invalid arguments"}, meta, nil
			}
		}

		entry, ok := r.Get(args.Name)
		if !ok {
			return registry.Observation{IsError: true, Text: fmt.Sprintf("skill %q not found", args.Name)}, meta, nil
		}
		return registry.Observation{Text: entry.Content}, meta, nil
	}
}
