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

// Command orchestrator is the CLI for the materials-science agent tool
// orchestration runtime.
//
// Usage:
//
//	orchestrator run "relax the bulk structure and report the final energy" --config mcp.json
//	orchestrator run "screen these 12 candidate surfaces" --mode planner --task-id batch-07
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI is the top-level command set.
type CLI struct {
	Run     RunCmd     `cmd:"" default:"1" help:"Run one task through the orchestrator."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	TransportConfig string `name:"config" short:"c" help:"Path to the MCP transport config JSON (mcpServers)." type:"path"`
	RunDir          string `name:"run-dir" help:"Run directory root." default:".orchestrator" type:"path"`
	SkillsDir       string `name:"skills-dir" help:"Directory tree of bundled SKILL.md skills." type:"path"`

	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `name:"log-file" help:"Log file path (empty = stderr)."`
	LogFormat string `name:"log-format" help:"Log format (simple, verbose)." default:"simple"`

	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (empty disables it)."`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("orchestrator version %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Agent tool orchestration runtime for materials-science autonomous research."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	if err == nil {
		os.Exit(exitCompleted)
	}

	var ec *exitCodeError
	if errors.As(err, &ec) {
		fmt.Fprintln(os.Stderr, ec.err)
		os.Exit(ec.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitFatalConfig)
}
