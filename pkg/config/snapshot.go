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

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/matsci/orchestrator/pkg/rundir"
)

// WriteSnapshot serializes whatever effective-config value the caller holds
// to {run_dir}/config.yaml, atomically. The runtime never loads this file
// back; it exists purely as an operator-facing record of what ran.
func WriteSnapshot(dir *rundir.Dir, effective any) error {
	data, err := yaml.Marshal(effective)
	if err != nil {
		return fmt.Errorf("config: marshal snapshot: %w", err)
	}
	return rundir.WriteFileAtomic(dir.ConfigSnapshotPath(), data, 0o644)
}
