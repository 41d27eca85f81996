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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/matsci/orchestrator/pkg/agent"
	"github.com/matsci/orchestrator/pkg/llmclient"
	"github.com/matsci/orchestrator/pkg/planner"
	"github.com/matsci/orchestrator/pkg/resilient"
	"github.com/matsci/orchestrator/pkg/solver"
)

const defaultSystemPrompt = "You are a materials-science research agent. " +
	"Use the available tools to accomplish the task, then call finish with " +
	"task_completed set to \"true\" or \"partial\" and a result summary."

const plannerSystemPrompt = "You are the planning stage of a materials-science " +
	"research agent. Given the runtime context and the set of available tools, " +
	"produce a step-by-step plan as a JSON object with a top-level \"steps\" array."

// RunCmd runs one task through the orchestrator, in direct or planner mode.
type RunCmd struct {
	Task string `arg:"" help:"The research task, in natural language."`

	Mode   string `help:"Execution mode: direct or planner." enum:"direct,planner" default:"direct"`
	TaskID string `name:"task-id" help:"Task identifier; generated if omitted."`

	Resilient bool `help:"Wrap direct-mode execution in the submit/monitor/diagnose/retry loop."`

	JobStatusTool   string        `name:"job-status-tool" help:"Qualified tool name polled for job status." default:"job_provider_get_job_status"`
	JobFetchTool    string        `name:"job-fetch-tool" help:"Qualified tool name used to fetch job results." default:"job_provider_get_job_results"`
	JobDiagnoseTool string        `name:"job-diagnose-tool" help:"Qualified tool name used to diagnose a failed job." default:"job_provider_diagnose_job"`
	MaxRetries      int           `name:"max-retries" help:"Resilient engine retry budget." default:"3"`
	PollInterval    time.Duration `name:"poll-interval" help:"Resilient engine poll interval." default:"30s"`

	MaxTurns     int    `name:"max-turns" help:"Agent turn budget per solve." default:"20"`
	MaxSteps     int    `name:"max-steps" help:"Planner step budget." default:"12"`
	SystemPrompt string `name:"system-prompt" help:"Override the agent's system prompt."`

	LLMEndpoint string `name:"llm-endpoint" help:"Language model HTTP endpoint." env:"ORCHESTRATOR_LLM_ENDPOINT" required:""`
	LLMAPIKey   string `name:"llm-api-key" help:"Language model API key." env:"ORCHESTRATOR_LLM_API_KEY"`

	OutputFile string `name:"output" short:"o" help:"Write the final result to this file instead of stdout." type:"path"`
}

// Run dispatches to direct or planner mode and maps the outcome onto the
// CLI's exit-code contract: 0 completed, 1 fatal config error, 2 aborted,
// any other non-zero value a failure.
func (rc *RunCmd) Run(cli *CLI) error {
	if rc.TaskID == "" {
		rc.TaskID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cli, rc)
	if err != nil {
		return fatalConfigError(err)
	}
	defer app.Close(context.Background())

	systemPrompt := rc.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	ag := agent.New(agent.Config{
		SystemPrompt: systemPrompt,
		MaxTurns:     rc.MaxTurns,
	}, app.llm, app.dir, app.rdir, rc.TaskID)
	sv := solver.New(ag)

	var output []byte
	switch rc.Mode {
	case "planner":
		output, err = rc.runPlanner(ctx, app, sv)
	default:
		output, err = rc.runDirect(ctx, app, sv)
	}
	if err != nil {
		return err
	}

	maybeEvolveSkill(ctx, app, rc.TaskID)
	return rc.writeOutput(output)
}

func (rc *RunCmd) runDirect(ctx context.Context, app *app, sv *solver.Solver) ([]byte, error) {
	if rc.Resilient {
		engine := resilient.New(resilient.Config{
			MaxRetries:        rc.MaxRetries,
			PollInterval:      rc.PollInterval,
			ErrorHandlers:     defaultJobErrorHandlers(),
			SubmitToolKeyword: "submit",
		}, sv,
			registryJobStatusPoller{dir: app.dir, tool: rc.JobStatusTool},
			registryResultFetcher{dir: app.dir, tool: rc.JobFetchTool},
			registryDiagnoser{dir: app.dir, tool: rc.JobDiagnoseTool})

		result, _, err := engine.Run(ctx, rc.Task)
		if err != nil {
			return nil, failedError(err)
		}
		return result, nil
	}

	res, err := sv.Solve(ctx, rc.Task)
	if err != nil {
		return nil, failedError(err)
	}
	switch res.Status {
	case agent.StatusCompleted:
		return []byte(res.FinalText), nil
	case agent.StatusExhausted:
		return nil, failedError(fmt.Errorf("agent exhausted its turn budget (%d turns) without calling finish", res.Turns))
	default:
		return nil, failedError(fmt.Errorf("agent run ended with status %s", res.Status))
	}
}

func (rc *RunCmd) runPlanner(ctx context.Context, app *app, sv *solver.Solver) ([]byte, error) {
	adapter := llmclient.PlannerAdapter{Client: app.llm}

	state, ok, err := planner.Resume(app.rdir, rc.TaskID, rc.Task)
	if err != nil {
		return nil, failedError(fmt.Errorf("resume plan state: %w", err))
	}

	if !ok {
		rc_ := planner.RuntimeContext{
			HardwareHasGPU: false,
			ActiveLicenses: planner.DefaultPolicy.LicenseAllowlist,
			Internet:       true,
			TargetFidelity: planner.FidelityScreening,
			MaxSteps:       rc.MaxSteps,
			UserIntent:     rc.Task,
		}
		plan, err := planner.Generate(ctx, adapter, planner.DefaultPolicy, rc_, app.dir.Names(), plannerSystemPrompt)
		if err != nil {
			return nil, failedError(fmt.Errorf("generate plan: %w", err))
		}
		if plan.Status == planner.PlanRefused {
			return nil, refusedError(fmt.Errorf("plan refused: %s", plan.RefusalReason))
		}

		gate := planner.NewStdinGate(os.Stdin, os.Stdout)
		plan, err = planner.PreFlight(ctx, adapter, planner.DefaultPolicy, plan, gate)
		if err != nil {
			return nil, failedError(fmt.Errorf("pre-flight: %w", err))
		}
		switch plan.Status {
		case planner.PlanAborted:
			return nil, abortedError(fmt.Errorf("operator aborted the plan at pre-flight"))
		case planner.PlanRefused:
			return nil, refusedError(fmt.Errorf("plan refused: %s", plan.RefusalReason))
		}

		state = &planner.State{Goal: rc.Task, Plan: plan}
	}

	gate := planner.NewStdinGate(os.Stdin, os.Stdout)
	if err := planner.Execute(ctx, app.rdir, rc.TaskID, state, solverStepExecutor{sv}, gate); err != nil {
		return nil, failedError(fmt.Errorf("execute plan: %w", err))
	}

	return json.MarshalIndent(state, "", "  ")
}

// solverStepExecutor adapts *solver.Solver onto planner.StepExecutor: one
// step's intent becomes one free-form agent task.
type solverStepExecutor struct {
	sv *solver.Solver
}

func (s solverStepExecutor) Execute(ctx context.Context, task string) (string, error) {
	res, err := s.sv.Solve(ctx, task)
	if err != nil {
		return "", err
	}
	if res.Status != agent.StatusCompleted {
		return res.FinalText, fmt.Errorf("step agent run ended with status %s", res.Status)
	}
	return res.FinalText, nil
}

func (rc *RunCmd) writeOutput(output []byte) error {
	if rc.OutputFile == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(rc.OutputFile, output, 0o644); err != nil {
		return failedError(fmt.Errorf("write output file: %w", err))
	}
	return nil
}
