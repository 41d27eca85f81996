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

// Package supervisor implements the Tool Server Supervisor: it manages the
// lifecycle of every tool-provider connection, runs one supervisor fiber per
// server, and keeps a shared registry.ToolDirectory projected from whichever
// servers are currently Ready. Every operation that touches a Connection
// runs through the Bridge, matching the scoped-acquisition algorithm in
// mcp_manager.py's add_server/remove_server.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/matsci/orchestrator/pkg/adaptor"
	"github.com/matsci/orchestrator/pkg/bridge"
	"github.com/matsci/orchestrator/pkg/mcptool"
	"github.com/matsci/orchestrator/pkg/observability"
	"github.com/matsci/orchestrator/pkg/orcherr"
	"github.com/matsci/orchestrator/pkg/registry"
)

// State is a ToolServer's connection_state, per spec §3.
type State string

const (
	StateStarting State = "Starting"
	StateReady    State = "Ready"
	StateStopping State = "Stopping"
	StateFailed   State = "Failed"
)

// ErrAlreadyExists is returned by AddServer when name is already registered.
var ErrAlreadyExists = errors.New("supervisor: server already exists")

// ErrNotFound is returned by RemoveServer for an unknown name.
var ErrNotFound = errors.New("supervisor: server not found")

type serverHandle struct {
	name   string
	params mcptool.Params

	mu    sync.Mutex
	state State
	conn  mcptool.Connection

	stopCh chan struct{}
	doneCh chan struct{}
}

func (h *serverHandle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *serverHandle) getState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Supervisor owns the server table and drives every connection through a
// shared Bridge and ToolDirectory.
type Supervisor struct {
	br   *bridge.Bridge
	dir  *registry.ToolDirectory
	ad   *adaptor.Adaptor
	dial func(name string, params mcptool.Params) (mcptool.Connection, error)

	mu      sync.Mutex
	servers map[string]*serverHandle

	metrics *observability.Metrics
}

// Option customizes a Supervisor at construction time.
type Option func(*Supervisor)

// WithDialer overrides how connections are constructed; tests use this to
// inject a fake Connection without a real subprocess or HTTP server.
func WithDialer(dial func(name string, params mcptool.Params) (mcptool.Connection, error)) Option {
	return func(s *Supervisor) { s.dial = dial }
}

// WithMetrics attaches Prometheus gauges the supervisor keeps current as
// servers come and go. Metrics stays nil (all updates no-ops) when this
// option is omitted.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New constructs a Supervisor wired to br (the concurrency bridge), dir (the
// shared tool directory it projects into), and ad (the argument adaptor
// every invoke closure composes in front of the call).
func New(br *bridge.Bridge, dir *registry.ToolDirectory, ad *adaptor.Adaptor, opts ...Option) *Supervisor {
	s := &Supervisor{br: br, dir: dir, ad: ad, dial: mcptool.Dial, servers: make(map[string]*serverHandle)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddServer spawns a supervisor fiber for name. It blocks until the
// connection is open and its tools are projected (or the open fails), per
// spec §4.D: "must run on the loop... If the supervisor fiber fails before
// Ready, add_server rejects with the captured error and all per-server
// state is purged."
func (s *Supervisor) AddServer(ctx context.Context, name string, params mcptool.Params, allowlist []string) error {
	s.mu.Lock()
	if _, exists := s.servers[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	handle := &serverHandle{
		name:   name,
		params: params,
		state:  StateStarting,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.servers[name] = handle
	s.mu.Unlock()

	var allowSet map[string]bool
	if len(allowlist) > 0 {
		allowSet = make(map[string]bool, len(allowlist))
		for _, n := range allowlist {
			allowSet[n] = true
		}
	}

	_, err := s.br.SubmitWithDeadline(ctx, 0, func(ctx context.Context) (any, error) {
		conn, err := s.dial(name, params)
		if err != nil {
			return nil, err
		}
		if err := conn.Open(ctx); err != nil {
			return nil, err
		}
		tools, err := conn.ListTools(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}

		handle.mu.Lock()
		handle.conn = conn
		handle.state = StateReady
		handle.mu.Unlock()

		for _, t := range tools {
			if allowSet != nil && !allowSet[t.Name] {
				continue
			}
			desc := registry.DescriptorFromRemote(name, t)
			if err := registry.ValidateInputSchema(desc.InputSchema); err != nil {
				slog.Warn("supervisor: malformed tool schema skipped", "tool", desc.QualifiedName, "error", err)
				continue
			}
			if err := s.dir.Register(desc, s.buildInvoke(name, conn, desc)); err != nil {
				slog.Warn("supervisor: duplicate tool registration skipped", "tool", desc.QualifiedName, "error", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		handle.setState(StateFailed)
		s.mu.Lock()
		delete(s.servers, name)
		s.mu.Unlock()
		close(handle.doneCh)
		return orcherr.Transport(name, "add_server failed before ready", err)
	}

	if s.metrics != nil {
		s.metrics.ActiveToolServers.Inc()
		s.metrics.RegisteredTools.Set(float64(s.dir.Count()))
	}

	go s.runFiber(handle)
	return nil
}

// runFiber parks awaiting stop_signal, then unwinds the scoped acquisition:
// remove the server's tools from the registry before closing the
// connection, exactly as ToolServer's Stopping invariant requires.
func (s *Supervisor) runFiber(h *serverHandle) {
	<-h.stopCh
	h.setState(StateStopping)

	s.dir.RemoveServer(h.name)
	if s.metrics != nil {
		s.metrics.ActiveToolServers.Dec()
		s.metrics.RegisteredTools.Set(float64(s.dir.Count()))
	}

	_, _ = s.br.SubmitWithDeadline(context.Background(), bridge.DefaultDeadline, func(ctx context.Context) (any, error) {
		h.mu.Lock()
		conn := h.conn
		h.mu.Unlock()
		if conn == nil {
			return nil, nil
		}
		return nil, conn.Close()
	})

	close(h.doneCh)
}

// RemoveServer signals the server's stop_signal and awaits the fiber's clean
// exit.
func (s *Supervisor) RemoveServer(name string) error {
	s.mu.Lock()
	handle, ok := s.servers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.servers, name)
	s.mu.Unlock()

	close(handle.stopCh)
	<-handle.doneCh
	return nil
}

// Cleanup removes every server, collecting per-server failures without
// letting one failure block the rest, per spec §5 "cleanup() is best-effort".
func (s *Supervisor) Cleanup() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.servers))
	for name := range s.servers {
		names = append(names, name)
	}
	s.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := s.RemoveServer(name); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ServerNames returns the currently tracked server names.
func (s *Supervisor) ServerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.servers))
	for name := range s.servers {
		out = append(out, name)
	}
	return out
}

// ServerState reports one server's connection_state.
func (s *Supervisor) ServerState(name string) (State, bool) {
	s.mu.Lock()
	handle, ok := s.servers[name]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	return handle.getState(), true
}

// buildInvoke composes the Adaptor, a Bridge-submitted Connection.CallTool,
// and content formatting into the closure the ToolDirectory stores, per
// spec §4.E.
func (s *Supervisor) buildInvoke(server string, conn mcptool.Connection, desc registry.Descriptor) registry.InvokeFunc {
	return func(ctx context.Context, rawArgs json.RawMessage) (registry.Observation, registry.Meta, error) {
		meta := registry.Meta{OriginServer: server, RemoteName: desc.RemoteName}

		var args map[string]any
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return registry.Observation{}, meta, orcherr.Protocol(server, "invalid tool arguments json", err)
			}
		}
		if args == nil {
			args = map[string]any{}
		}

		effective, err := s.ad.Resolve(ctx, adaptor.Request{
			QualifiedName: desc.QualifiedName,
			OriginServer:  server,
			RemoteName:    desc.RemoteName,
			InputSchema:   desc.InputSchema,
			RawArgs:       args,
		})
		if err != nil {
			return registry.Observation{IsError: true, Text: err.Error()}, meta, orcherr.Adaptor(desc.QualifiedName, "resolve arguments", err)
		}

		value, err := s.br.SubmitWithDeadline(ctx, bridge.DefaultDeadline, func(ctx context.Context) (any, error) {
			return conn.CallTool(ctx, desc.RemoteName, effective)
		})
		if err != nil {
			return registry.Observation{IsError: true, Text: err.Error()}, meta, err
		}

		result := value.(mcptool.CallResult)
		return formatObservation(result), meta, nil
	}
}

func formatObservation(result mcptool.CallResult) registry.Observation {
	var text string
	for i, part := range result.Content {
		if i > 0 {
			text += "\n"
		}
		switch {
		case part.Text != "":
			text += part.Text
		case part.JSON != nil:
			if data, err := json.Marshal(part.JSON); err == nil {
				text += string(data)
			}
		case part.ImageData != "":
			text += fmt.Sprintf("[image %s, %d bytes]", part.ImageMIME, len(part.ImageData))
		}
	}
	return registry.Observation{Text: text, IsError: result.IsError}
}
