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

// Package rundir manages the on-disk layout of a single run of the
// orchestrator (logs, trajectories, workspaces) and provides the atomic
// temp-file-then-rename writer every persisted artifact in the runtime uses.
package rundir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents the {run_dir} tree described in the external interfaces:
//
//	{run_dir}/
//	  config.yaml
//	  logs/{task_id|evomaster}.log
//	  trajectories/[{task_id}/]trajectory.json
//	  workspaces/{task_id}/
//	  workspaces/{task_id}/research_state.json
type Dir struct {
	Root string
}

// New ensures root, logs/, trajectories/, and workspaces/ exist and returns a
// Dir rooted there.
func New(root string) (*Dir, error) {
	d := &Dir{Root: root}
	for _, sub := range []string{"", "logs", "trajectories", "workspaces"} {
		if err := os.MkdirAll(d.path(sub), 0o755); err != nil {
			return nil, fmt.Errorf("rundir: create %s: %w", sub, err)
		}
	}
	return d, nil
}

func (d *Dir) path(parts ...string) string {
	return filepath.Join(append([]string{d.Root}, parts...)...)
}

// LogPath returns the log file path for a task, or the shared evomaster.log
// when taskID is empty.
func (d *Dir) LogPath(taskID string) string {
	name := "evomaster.log"
	if taskID != "" {
		name = taskID + ".log"
	}
	return d.path("logs", name)
}

// TrajectoryPath returns the process-global trajectory file for taskID. When
// taskID is empty the file is shared across every agent instance in the run,
// matching the spec's multi-agent correlation requirement.
func (d *Dir) TrajectoryPath(taskID string) string {
	if taskID == "" {
		return d.path("trajectories", "trajectory.json")
	}
	return d.path("trajectories", taskID, "trajectory.json")
}

// WorkspacePath returns workspaces/{task_id}, creating it if necessary. The
// runtime guarantees this directory exists before any tool call that
// receives a workspace path.
func (d *Dir) WorkspacePath(taskID string) (string, error) {
	p := d.path("workspaces", taskID)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("rundir: create workspace %s: %w", taskID, err)
	}
	return p, nil
}

// StepWorkspacePath returns workspaces/{task_id}/step_{step_id}, creating it.
func (d *Dir) StepWorkspacePath(taskID string, stepID int) (string, error) {
	base, err := d.WorkspacePath(taskID)
	if err != nil {
		return "", err
	}
	p := filepath.Join(base, fmt.Sprintf("step_%d", stepID))
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("rundir: create step workspace: %w", err)
	}
	return p, nil
}

// ResearchStatePath returns workspaces/{task_id}/research_state.json.
func (d *Dir) ResearchStatePath(taskID string) (string, error) {
	base, err := d.WorkspacePath(taskID)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "research_state.json"), nil
}

// ConfigSnapshotPath returns config.yaml at the run directory root.
func (d *Dir) ConfigSnapshotPath() string {
	return d.path("config.yaml")
}

// NewSkillPath returns workspaces/{task_id}/new_skill, the fixed directory
// the Skill Evolution flow writes a candidate skill into.
func (d *Dir) NewSkillPath(taskID string) (string, error) {
	base, err := d.WorkspacePath(taskID)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "new_skill"), nil
}

// WriteFileAtomic writes data to path via path+".tmp" then os.Rename, so a
// crash between the two leaves the previous version of path intact.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rundir: mkdir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rundir: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rundir: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// WriteJSONAtomic marshals v and writes it atomically to path.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("rundir: marshal json for %s: %w", path, err)
	}
	return WriteFileAtomic(path, data, 0o644)
}

// ReadJSON reads and unmarshals path into v. It returns os.ErrNotExist
// (wrapped) when the file is absent so callers can distinguish "no prior
// state" from a corrupt file.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
