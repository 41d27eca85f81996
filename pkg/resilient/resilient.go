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

// Package resilient implements the Resilient Calc Engine: a
// submit-monitor-diagnose-fix-retry loop for long-running external jobs
// (DFT/MLP/MD calculations dispatched to a tool-provider submit tool). The
// source's job-status and result-fetching methods were explicitly
// unimplemented ("not implemented") stubs; this package treats them as
// required contracts the runtime wires to whichever provider the active
// registry exposes, per spec §9's resolution of that ambiguity.
package resilient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matsci/orchestrator/pkg/agent"
	"github.com/matsci/orchestrator/pkg/orcherr"
)

// JobStatus is the normalized outcome of a status poll, mapped from
// whatever provider-specific string the status tool returns.
type JobStatus string

const (
	StatusDone    JobStatus = "Done"
	StatusFailed  JobStatus = "Failed"
	StatusUnknown JobStatus = "Unknown"
)

// Solver is the leaf executor: one agent run over a free-form task,
// returning its terminal result. *solver.Solver satisfies this.
type Solver interface {
	Solve(ctx context.Context, task string) (*agent.Result, error)
}

// JobStatusPoller maps a job id to a normalized JobStatus. Implementations
// wire this to the registered status tool for the provider the job was
// submitted to.
type JobStatusPoller interface {
	Poll(ctx context.Context, jobID string) (JobStatus, error)
}

// ResultFetcher retrieves the final result payload for a Done job.
type ResultFetcher interface {
	Fetch(ctx context.Context, jobID string) (json.RawMessage, error)
}

// Diagnoser extracts a provider error_code from a Failed job, used to look
// up fix_actions in Config.ErrorHandlers.
type Diagnoser interface {
	Diagnose(ctx context.Context, jobID string) (errorCode string, err error)
}

// Config parameterizes one resilient run.
type Config struct {
	MaxRetries         int
	PollInterval       time.Duration
	ErrorHandlers      map[string][]FixAction // error_code -> fix_actions, config-driven
	SubmitToolKeyword  string                 // default "submit"
}

// FixAction is one `{"set": "mem=64G"}`-shaped instruction applied by
// instructing the agent to resubmit with the adjustment.
type FixAction struct {
	Set   string `json:"set,omitempty"`
	Unset string `json:"unset,omitempty"`
}

// State is the ResilientState from spec §3, re-derivable after every
// iteration for diagnostics or persistence by the caller.
type State struct {
	JobID         string
	Retries       int
	LastDiagnosis string
}

// Engine drives the submit-monitor-diagnose-fix-retry loop.
type Engine struct {
	cfg     Config
	solver  Solver
	poller  JobStatusPoller
	fetcher ResultFetcher
	diag    Diagnoser
}

// New constructs an Engine. cfg.MaxRetries defaults to 3 and
// cfg.PollInterval to 30s when zero; cfg.SubmitToolKeyword defaults to
// "submit".
func New(cfg Config, solver Solver, poller JobStatusPoller, fetcher ResultFetcher, diag Diagnoser) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.SubmitToolKeyword == "" {
		cfg.SubmitToolKeyword = "submit"
	}
	return &Engine{cfg: cfg, solver: solver, poller: poller, fetcher: fetcher, diag: diag}
}

// submitPayload is the shape job-submission tool responses are expected to
// carry, per spec §4.I: a JSON body with job_id or id.
type submitPayload struct {
	JobID string `json:"job_id"`
	ID    string `json:"id"`
}

// ExtractJobID scans trajectory for the first tool response whose tool call
// name contains the configured submit keyword and whose JSON body has
// job_id or id, returning it. ok is false when no such response exists —
// callers treat this as a synchronous task and return its result directly.
func (e *Engine) ExtractJobID(trajectory agent.Dialog) (jobID string, ok bool) {
	for _, msg := range trajectory {
		for i, call := range msg.ToolCalls {
			if !strings.Contains(strings.ToLower(call.Name), e.cfg.SubmitToolKeyword) {
				continue
			}
			if i >= len(msg.ToolResults) {
				continue
			}
			var p submitPayload
			if err := json.Unmarshal([]byte(msg.ToolResults[i].Text), &p); err != nil {
				continue
			}
			if p.JobID != "" {
				return p.JobID, true
			}
			if p.ID != "" {
				return p.ID, true
			}
		}
	}
	return "", false
}

// Run submits task via the agent, then polls/diagnoses/retries until the
// job is Done, MaxRetries is exhausted, or a fatal condition (Unknown
// status, unhandled error_code) aborts the run.
func (e *Engine) Run(ctx context.Context, task string) (result json.RawMessage, state State, err error) {
	res, err := e.solver.Solve(ctx, task)
	if err != nil {
		return nil, state, fmt.Errorf("resilient: initial submit: %w", err)
	}

	jobID, ok := e.ExtractJobID(res.Trajectory)
	if !ok {
		// No submit tool fired: treat as synchronous and return immediately.
		return json.RawMessage(res.FinalText), state, nil
	}
	state.JobID = jobID

	for state.Retries < e.cfg.MaxRetries {
		status, err := e.poller.Poll(ctx, state.JobID)
		if err != nil {
			return nil, state, orcherr.Job("poll failed", err)
		}

		switch status {
		case StatusDone:
			payload, err := e.fetcher.Fetch(ctx, state.JobID)
			if err != nil {
				return nil, state, orcherr.Job("fetch results failed", err)
			}
			return payload, state, nil

		case StatusUnknown:
			return nil, state, orcherr.Job(
				fmt.Sprintf("job %s status is Unknown: wiring gap, not a retry condition", state.JobID), nil)

		case StatusFailed:
			errorCode, derr := e.diag.Diagnose(ctx, state.JobID)
			if derr != nil {
				return nil, state, orcherr.Job("diagnosis failed", derr)
			}
			state.LastDiagnosis = errorCode

			fixes, handled := e.cfg.ErrorHandlers[errorCode]
			if !handled {
				return nil, state, orcherr.Job(
					fmt.Sprintf("job %s failed with unhandled error_code %q", state.JobID, errorCode), nil)
			}

			fixTask := fmt.Sprintf(
				"Job %s failed with error_code %q. Apply the following fixes and resubmit: %s",
				state.JobID, errorCode, describeFixes(fixes))
			res, err := e.solver.Solve(ctx, fixTask)
			if err != nil {
				return nil, state, fmt.Errorf("resilient: fix-and-resubmit: %w", err)
			}
			newJobID, ok := e.ExtractJobID(res.Trajectory)
			if !ok {
				return nil, state, orcherr.Job("fix-and-resubmit produced no new job id", nil)
			}
			state.JobID = newJobID
			state.Retries++

		default:
			return nil, state, orcherr.Job(fmt.Sprintf("unrecognized job status %q", status), nil)
		}

		select {
		case <-ctx.Done():
			return nil, state, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}

	return nil, state, orcherr.Job(
		fmt.Sprintf("job %s exhausted %d retries", state.JobID, e.cfg.MaxRetries), nil)
}

func describeFixes(fixes []FixAction) string {
	parts := make([]string, 0, len(fixes))
	for _, f := range fixes {
		switch {
		case f.Set != "":
			parts = append(parts, "set "+f.Set)
		case f.Unset != "":
			parts = append(parts, "unset "+f.Unset)
		}
	}
	return strings.Join(parts, "; ")
}
