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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/matsci/orchestrator/pkg/adaptor"
	"github.com/matsci/orchestrator/pkg/bridge"
	"github.com/matsci/orchestrator/pkg/config"
	"github.com/matsci/orchestrator/pkg/llmclient"
	"github.com/matsci/orchestrator/pkg/logger"
	"github.com/matsci/orchestrator/pkg/mcptool"
	"github.com/matsci/orchestrator/pkg/observability"
	"github.com/matsci/orchestrator/pkg/registry"
	"github.com/matsci/orchestrator/pkg/rundir"
	"github.com/matsci/orchestrator/pkg/skill"
	"github.com/matsci/orchestrator/pkg/supervisor"
)

// app bundles every long-lived component one CLI invocation wires together.
type app struct {
	rdir     *rundir.Dir
	dir      *registry.ToolDirectory
	br       *bridge.Bridge
	sup      *supervisor.Supervisor
	skillReg *skill.Registry
	llm      *llmclient.Client
	metrics  *observability.Metrics

	tracerShutdown func(context.Context) error
	metricsServer  *http.Server
	logCleanup     func()
}

// effectiveConfig is the run's operator-facing record, written to
// {run_dir}/config.yaml; it is never read back.
type effectiveConfig struct {
	TaskID          string `yaml:"task_id"`
	Mode            string `yaml:"mode"`
	TransportConfig string `yaml:"transport_config,omitempty"`
	RunDir          string `yaml:"run_dir"`
	SkillsDir       string `yaml:"skills_dir,omitempty"`
	MaxTurns        int    `yaml:"max_turns"`
	MaxSteps        int    `yaml:"max_steps,omitempty"`
	Resilient       bool   `yaml:"resilient,omitempty"`
}

// buildApp wires the full runtime for one invocation of RunCmd. Every
// fatal condition here is a Configuration error, such as a missing
// transport file. Object-storage settings are not checked here: the lazy
// uploader reports them at its first upload.
func buildApp(ctx context.Context, cli *CLI, rc *RunCmd) (*app, error) {
	rdir, err := rundir.New(cli.RunDir)
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	logCleanup, err := initLogging(cli, rdir, rc.TaskID)
	if err != nil {
		return nil, err
	}

	tracerShutdown, err := observability.InitTracerProvider(ctx, "orchestrator")
	if err != nil {
		return nil, fmt.Errorf("init tracer provider: %w", err)
	}
	metrics := observability.NewMetrics()

	var metricsServer *http.Server
	if cli.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cli.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	br := bridge.New(0)
	br.SetMetrics(metrics)

	dir := registry.NewToolDirectory()

	ad := adaptor.New(adaptor.Config{
		WorkspaceRoot: filepath.Join(rdir.Root, "workspaces"),
		Uploader:      newLazyS3Uploader(defaultS3Config()),
		Executor: adaptor.ExecutorPolicy{
			SyncTools: map[string]bool{
				"get_structure_info": true,
				"get_molecule_info":  true,
			},
			Template: map[string]any{
				"type":  "bohrium",
				"image": "registry.dp.tech/dptech/materials-runtime:latest",
			},
			CredentialEnvVars: map[string]string{
				"access_key": "ORCHESTRATOR_EXECUTOR_ACCESS_KEY",
				"project_id": "ORCHESTRATOR_EXECUTOR_PROJECT_ID",
			},
		},
		StorageDescriptor: map[string]any{
			"endpoint_env":   "ORCHESTRATOR_S3_ENDPOINT",
			"bucket_env":     "ORCHESTRATOR_S3_BUCKET",
			"access_key_env": "ORCHESTRATOR_S3_ACCESS_KEY",
		},
	})

	sup := supervisor.New(br, dir, ad, supervisor.WithMetrics(metrics))

	var skillReg *skill.Registry
	if cli.SkillsDir != "" {
		skillReg = skill.NewRegistry(cli.SkillsDir)
		if err := skillReg.Discover(); err != nil {
			return nil, fmt.Errorf("discover skills: %w", err)
		}
		if err := skillReg.Watch(ctx, 0); err != nil {
			return nil, fmt.Errorf("watch skills directory: %w", err)
		}
		if err := skillReg.RegisterTools(dir); err != nil {
			return nil, fmt.Errorf("register skill lookup tools: %w", err)
		}
	}

	if cli.TransportConfig != "" {
		if err := addTransportServers(ctx, cli.TransportConfig, rdir, sup); err != nil {
			return nil, err
		}
	}

	llm := llmclient.New(rc.LLMEndpoint, rc.LLMAPIKey)

	if err := config.WriteSnapshot(rdir, effectiveConfig{
		TaskID:          rc.TaskID,
		Mode:            rc.Mode,
		TransportConfig: cli.TransportConfig,
		RunDir:          cli.RunDir,
		SkillsDir:       cli.SkillsDir,
		MaxTurns:        rc.MaxTurns,
		MaxSteps:        rc.MaxSteps,
		Resilient:       rc.Resilient,
	}); err != nil {
		return nil, fmt.Errorf("write config snapshot: %w", err)
	}

	return &app{
		rdir:           rdir,
		dir:            dir,
		br:             br,
		sup:            sup,
		skillReg:       skillReg,
		llm:            llm,
		metrics:        metrics,
		tracerShutdown: tracerShutdown,
		metricsServer:  metricsServer,
		logCleanup:     logCleanup,
	}, nil
}

// Close tears down every component best-effort, collecting failures rather
// than stopping at the first one, matching the supervisor's own cleanup
// policy.
func (a *app) Close(ctx context.Context) {
	if err := a.sup.Cleanup(); err != nil {
		slog.Warn("supervisor cleanup reported errors", "error", err)
	}
	a.br.Stop()
	if a.skillReg != nil {
		if err := a.skillReg.Close(); err != nil {
			slog.Warn("skill registry close failed", "error", err)
		}
	}
	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown(ctx)
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
}

func initLogging(cli *CLI, rdir *rundir.Dir, taskID string) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	logPath := cli.LogFile
	if logPath == "" {
		logPath = rdir.LogPath(taskID)
	}
	file, cleanup, err := logger.OpenLogFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.Init(level, file, cli.LogFormat)
	return cleanup, nil
}

func addTransportServers(ctx context.Context, path string, rdir *rundir.Dir, sup *supervisor.Supervisor) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read transport config %s: %w", path, err)
	}

	workspacesDir := filepath.Join(rdir.Root, "workspaces")
	tc, err := config.LoadTransportConfig(raw, workspacesDir)
	if err != nil {
		return fmt.Errorf("load transport config: %w", err)
	}

	for name, sc := range tc.MCPServers {
		if err := sup.AddServer(ctx, name, serverParams(sc), sc.ToolIncludeOnly); err != nil {
			return fmt.Errorf("add server %s: %w", name, err)
		}
	}
	return nil
}

func serverParams(sc config.ServerConfig) mcptool.Params {
	if sc.IsStdio() {
		return mcptool.Params{
			Transport: mcptool.TransportStdio,
			Command:   sc.Command,
			Args:      sc.Args,
			Env:       sc.Env,
		}
	}

	p := mcptool.Params{URL: sc.URL, Headers: sc.Headers}
	switch sc.Transport {
	case "sse":
		p.Transport = mcptool.TransportSSE
	case "streamable-http":
		p.Transport = mcptool.TransportStreamableHTTP
	default:
		p.Transport = mcptool.TransportHTTP
	}
	return p
}

// lazyS3Uploader defers constructing the real S3Uploader (and therefore
// validating its required environment variables) until the first call that
// actually needs to upload a file, per spec §6: "absence is fatal at the
// first call that needs them," not at process startup.
type lazyS3Uploader struct {
	cfg  adaptor.S3Config
	once sync.Once
	real *adaptor.S3Uploader
	err  error
}

func newLazyS3Uploader(cfg adaptor.S3Config) *lazyS3Uploader {
	return &lazyS3Uploader{cfg: cfg}
}

func (u *lazyS3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	u.once.Do(func() {
		u.real, u.err = adaptor.NewS3Uploader(ctx, u.cfg)
	})
	if u.err != nil {
		return "", u.err
	}
	return u.real.Upload(ctx, localPath)
}

func defaultS3Config() adaptor.S3Config {
	return adaptor.S3Config{
		EndpointEnv:  "ORCHESTRATOR_S3_ENDPOINT",
		BucketEnv:    "ORCHESTRATOR_S3_BUCKET",
		AccessKeyEnv: "ORCHESTRATOR_S3_ACCESS_KEY",
		SecretKeyEnv: "ORCHESTRATOR_S3_SECRET_KEY",
		RegionEnv:    "ORCHESTRATOR_S3_REGION",
		Prefix:       "orchestrator",
	}
}

var _ adaptor.Uploader = (*lazyS3Uploader)(nil)

// maybeEvolveSkill checks whether the task workspace's fixed new_skill/
// directory was populated during the run and, if so, runs it through the
// sandbox-gated Skill Evolution flow. A missing directory is the common
// case (most tasks never author a skill) and is not an error.
func maybeEvolveSkill(ctx context.Context, a *app, taskID string) {
	if a.skillReg == nil {
		return
	}
	path, err := a.rdir.NewSkillPath(taskID)
	if err != nil {
		return
	}
	if _, err := os.Stat(filepath.Join(path, skill.Filename)); err != nil {
		return
	}

	entry, err := skill.Evolve(ctx, a.skillReg, nil, path)
	if err != nil {
		slog.Warn("skill evolution rejected candidate", "path", path, "error", err)
		return
	}
	slog.Info("skill evolution registered new skill", "name", entry.Name, "skill_type", entry.SkillType)
}
