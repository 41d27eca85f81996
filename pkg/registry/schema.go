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

package registry

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateInputSchema compiles schema as a JSON Schema document, rejecting
// anything a list_tools response could hand back that isn't one: bad
// "type" keywords, malformed "properties", unresolvable "$ref"s. A nil or
// empty schema (a tool that takes no arguments) is valid. Compilation, not
// instance validation, is the point here — the tool hasn't been called yet.
func ValidateInputSchema(schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	c := jsonschema.NewCompiler()
	const resourceID = "tool-input-schema.json"
	if err := c.AddResource(resourceID, schema); err != nil {
		return fmt.Errorf("registry: add schema resource: %w", err)
	}
	if _, err := c.Compile(resourceID); err != nil {
		return fmt.Errorf("registry: compile input schema: %w", err)
	}
	return nil
}
