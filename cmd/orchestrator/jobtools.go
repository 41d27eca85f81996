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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsci/orchestrator/pkg/registry"
	"github.com/matsci/orchestrator/pkg/resilient"
)

// registryJobStatusPoller, registryResultFetcher, and registryDiagnoser
// adapt the Resilient Calc Engine's three provider contracts onto whichever
// tool is currently registered under the configured qualified name. The
// Python original left these unimplemented; here they are a thin
// registry.ToolDirectory.Invoke call plus a fixed response shape.
type registryJobStatusPoller struct {
	dir  *registry.ToolDirectory
	tool string
}

func (p registryJobStatusPoller) Poll(ctx context.Context, jobID string) (resilient.JobStatus, error) {
	obs, err := invokeWithJobID(ctx, p.dir, p.tool, jobID)
	if err != nil {
		return resilient.StatusUnknown, err
	}
	if obs.IsError {
		return resilient.StatusUnknown, fmt.Errorf("job status tool %s: %s", p.tool, obs.Text)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(obs.Text), &payload); err != nil {
		return resilient.StatusUnknown, fmt.Errorf("parse job status response: %w", err)
	}
	switch strings.ToLower(payload.Status) {
	case "done", "completed", "success", "finished":
		return resilient.StatusDone, nil
	case "failed", "error":
		return resilient.StatusFailed, nil
	default:
		return resilient.StatusUnknown, nil
	}
}

type registryResultFetcher struct {
	dir  *registry.ToolDirectory
	tool string
}

func (f registryResultFetcher) Fetch(ctx context.Context, jobID string) (json.RawMessage, error) {
	obs, err := invokeWithJobID(ctx, f.dir, f.tool, jobID)
	if err != nil {
		return nil, err
	}
	if obs.IsError {
		return nil, fmt.Errorf("fetch results tool %s: %s", f.tool, obs.Text)
	}
	return json.RawMessage(obs.Text), nil
}

type registryDiagnoser struct {
	dir  *registry.ToolDirectory
	tool string
}

func (d registryDiagnoser) Diagnose(ctx context.Context, jobID string) (string, error) {
	obs, err := invokeWithJobID(ctx, d.dir, d.tool, jobID)
	if err != nil {
		return "", err
	}
	if obs.IsError {
		return "", fmt.Errorf("diagnose tool %s: %s", d.tool, obs.Text)
	}

	var payload struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal([]byte(obs.Text), &payload); err != nil {
		return "", fmt.Errorf("parse diagnosis response: %w", err)
	}
	return payload.ErrorCode, nil
}

func invokeWithJobID(ctx context.Context, dir *registry.ToolDirectory, tool, jobID string) (registry.Observation, error) {
	args, err := json.Marshal(map[string]any{"job_id": jobID})
	if err != nil {
		return registry.Observation{}, err
	}
	obs, _, err := dir.Invoke(ctx, tool, args)
	return obs, err
}

// defaultJobErrorHandlers is a conservative starter set of fix_actions for
// the error_codes a DFT/MD job runner most commonly reports. Operators
// extend this by wiring their own Config.ErrorHandlers if the bundled set
// doesn't match their provider's vocabulary.
func defaultJobErrorHandlers() map[string][]resilient.FixAction {
	return map[string][]resilient.FixAction{
		"out_of_memory":     {{Set: "mem=128G"}},
		"walltime_exceeded": {{Set: "walltime=48h"}},
		"scf_not_converged": {{Set: "electronic_convergence=loose"}},
	}
}
