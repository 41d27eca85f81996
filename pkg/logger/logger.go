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

// Package logger sets up the process-wide slog logger for the
// orchestrator. A run has a noisy neighbor problem peculiar to this
// domain: every tool-provider subprocess and every vendored client
// (mark3labs/mcp-go, the AWS SDK, the OTel SDK) can log through the
// default slog handler too, and at anything above DEBUG that noise would
// drown out the supervisor/bridge/planner's own records. The filtering
// handler here keeps third-party records out of non-DEBUG output by
// inspecting the call site, the same shape the teacher repo uses.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

// ownModulePrefix identifies log records emitted by this runtime's own
// packages (cmd/orchestrator and everything under pkg/), as opposed to a
// tool-provider subprocess's stderr forwarding or a vendored client
// library logging through the shared slog default.
const ownModulePrefix = "github.com/matsci/orchestrator"

// ParseLevel converts a string log level to slog.Level. Unrecognized input
// falls back to Warn rather than erroring, since a typo'd --log-level flag
// shouldn't be fatal.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler wraps a slog handler and drops third-party records
// (i.e. not from ownModulePrefix) unless the configured level is DEBUG.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel > slog.LevelDebug && !fromOwnModule(record.PC) {
		return nil
	}
	return h.handler.Handle(ctx, record)
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

// fromOwnModule reports whether pc's function belongs to this runtime's own
// module, by both the function's import path and its source file path (a
// vendored dependency built with trimmed paths may only retain one).
func fromOwnModule(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.HasPrefix(fn.Name(), ownModulePrefix) || strings.Contains(file, "/orchestrator/")
}

var levelColor = map[slog.Leveler]string{
	slog.LevelDebug: "\033[90m",
	slog.LevelInfo:  "\033[36m",
	slog.LevelWarn:  "\033[33m",
	slog.LevelError: "\033[31m",
}

func colorFor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return levelColor[slog.LevelError]
	case level >= slog.LevelWarn:
		return levelColor[slog.LevelWarn]
	case level >= slog.LevelInfo:
		return levelColor[slog.LevelInfo]
	default:
		return levelColor[slog.LevelDebug]
	}
}

func isTerminal(file *os.File) bool {
	info, err := file.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// lineHandler renders one record per line: optionally timestamped
// (verbose), optionally colored (terminal output), with the level and
// message always present and any attributes appended as key=value pairs.
// This replaces the teacher's three separate handler types (plain,
// colored, simple) with one parameterized by the two axes that actually
// vary across this CLI's --log-format/--log-file combinations.
type lineHandler struct {
	writer    *os.File
	level     slog.Level
	timestamp bool
	color     bool
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	if h.timestamp && !record.Time.IsZero() {
		b.WriteString(record.Time.Format("2006-01-02 15:04:05 "))
	}

	levelStr := strings.ToUpper(record.Level.String())
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	if h.color {
		b.WriteString(colorFor(record.Level))
		b.WriteString(levelStr)
		b.WriteString("\033[0m")
	} else {
		b.WriteString(levelStr)
	}
	b.WriteString(" ")
	b.WriteString(record.Message)

	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
		return true
	})
	b.WriteString("\n")

	_, err := h.writer.WriteString(b.String())
	return err
}

func (h *lineHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *lineHandler) WithGroup(string) slog.Handler      { return h }

// Init installs the process-wide slog default: level filters both the
// orchestrator's own records and (at any level above DEBUG) silences
// third-party noise entirely; format selects "verbose" (timestamped) or "simple" (bare
// level+message, the default); color is enabled automatically when output
// is a terminal.
func Init(level slog.Level, output *os.File, format string) {
	handler := slog.Handler(&lineHandler{
		writer:    output,
		level:     level,
		timestamp: format == "verbose",
		color:     isTerminal(output),
	})

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens or creates a log file for append, matching the
// {run_dir}/logs/{task_id|evomaster}.log layout from spec §6.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the process-wide logger, initializing a stderr/info
// default the first time it's called from a path that skipped Init (tests,
// library callers).
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
