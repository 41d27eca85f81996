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

// Package adaptor implements the Argument Adaptor: per-tool-call rewriting
// of file-path arguments into uploaded object-storage URLs, plus executor
// and storage descriptor injection. It is grounded on the original
// implementation's CalculationPathAdaptor (path_adaptor.py), carried over in
// meaning as Go types and maps.
package adaptor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsci/orchestrator/pkg/orcherr"
)

// Uploader uploads a local file to object storage and returns its URL. The
// default implementation targets an S3-compatible endpoint; tests substitute
// a fake.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (url string, err error)
}

// ExecutorPolicy carries the executor/sync_tools split from the original
// adaptor: some tools run in-process (executor="none"), others get a
// deep-copied executor template with credentials injected at call time.
type ExecutorPolicy struct {
	// SyncTools lists remote tool names that run in-process.
	SyncTools map[string]bool
	// Template is the executor descriptor injected for everything else,
	// e.g. {"type": "bohrium", "machine": "...", "image": "..."}. Resolve
	// deep-copies it and adds credentials from the environment.
	Template map[string]any
	// CredentialEnvVars maps a key to inject into the copied template to
	// the environment variable that supplies its value.
	CredentialEnvVars map[string]string
}

// Request is the Adaptor's input: the raw call about to be dispatched.
type Request struct {
	QualifiedName string
	OriginServer  string
	RemoteName    string
	InputSchema   map[string]any
	RawArgs       map[string]any
}

// Config configures an Adaptor instance.
type Config struct {
	WorkspaceRoot string
	Uploader      Uploader
	Executor      ExecutorPolicy
	// StorageDescriptor is a fixed descriptor referencing an HTTPS endpoint
	// with provider credentials from the process environment, e.g.
	// {"endpoint": "...", "bucket": "...", "access_key_env": "..."}.
	StorageDescriptor map[string]any
	// ServerAllowlist restricts which origin servers the adaptor touches at
	// all (path_adaptor_servers in the original); nil means every server.
	ServerAllowlist map[string]bool
}

// Adaptor resolves raw tool-call arguments into effective arguments.
type Adaptor struct {
	cfg Config
}

// New constructs an Adaptor.
func New(cfg Config) *Adaptor {
	return &Adaptor{cfg: cfg}
}

// Resolve implements the contract from spec §4.A.
func (a *Adaptor) Resolve(ctx context.Context, req Request) (map[string]any, error) {
	if a.cfg.ServerAllowlist != nil && !a.cfg.ServerAllowlist[req.OriginServer] {
		return req.RawArgs, nil
	}

	effective := deepCopyMap(req.RawArgs)

	effective["executor"] = a.resolveExecutor(req.RemoteName)
	effective["storage"] = deepCopyMap(a.cfg.StorageDescriptor)

	pathArgs := a.pathArgNames(req.RemoteName, req.InputSchema)
	for name := range pathArgs {
		value, ok := effective[name]
		if !ok {
			continue
		}
		resolved, err := a.resolveValue(req.QualifiedName, value)
		if err != nil {
			return nil, err
		}
		effective[name] = resolved
	}

	return effective, nil
}

func (a *Adaptor) resolveExecutor(remoteName string) any {
	if a.cfg.Executor.SyncTools[remoteName] {
		return "none"
	}
	tmpl := deepCopyMap(a.cfg.Executor.Template)
	for key, envVar := range a.cfg.Executor.CredentialEnvVars {
		tmpl[key] = os.Getenv(envVar)
	}
	return tmpl
}

// pathArgNames is the union of the hand-maintained table and the schema
// heuristic, per spec §4.A.3 — the hand table is never dropped even when
// the heuristic also matches.
func (a *Adaptor) pathArgNames(remoteName string, schema map[string]any) map[string]bool {
	union := make(map[string]bool)
	if names, ok := PathArgNames(remoteName); ok {
		for _, n := range names {
			union[n] = true
		}
	}
	for _, n := range pathArgNamesFromSchema(schema) {
		union[n] = true
	}
	return union
}

func pathArgNamesFromSchema(schema map[string]any) []string {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		return nil
	}

	var out []string
	for name, raw := range props {
		if nonPathSchemaKeys[name] {
			continue
		}
		lowerName := strings.ToLower(name)
		desc := ""
		if propMap, ok := raw.(map[string]any); ok {
			if d, ok := propMap["description"].(string); ok {
				desc = strings.ToLower(d)
			}
		}
		for _, kw := range schemaHintKeywords {
			if strings.Contains(lowerName, kw) || strings.Contains(desc, kw) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// resolveValue rewrites a single path argument's value (string or list of
// strings), uploading any local file and substituting its URL. Values that
// are already http(s):// or local:// URLs are left unchanged, satisfying
// the idempotence property in spec §8.
func (a *Adaptor) resolveValue(toolName string, value any) (any, error) {
	switch v := value.(type) {
	case string:
		return a.resolveOne(toolName, v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				out[i] = elem
				continue
			}
			resolved, err := a.resolveOne(toolName, s)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (a *Adaptor) resolveOne(toolName, value string) (string, error) {
	if isRemoteURL(value) {
		return value, nil
	}

	localPath := a.toLocalPath(value)
	info, err := os.Stat(localPath)
	if err != nil {
		return "", orcherr.Adaptor(toolName, fmt.Sprintf("file not found: %s", localPath), err)
	}
	if !info.Mode().IsRegular() {
		return "", orcherr.Adaptor(toolName, fmt.Sprintf("not a regular file: %s", localPath), nil)
	}

	if a.cfg.Uploader == nil {
		return "", orcherr.Adaptor(toolName, "no uploader configured", nil)
	}
	url, err := a.cfg.Uploader.Upload(context.Background(), localPath)
	if err != nil {
		return "", orcherr.Adaptor(toolName, fmt.Sprintf("upload failed for %s", localPath), err)
	}
	return url, nil
}

func isRemoteURL(value string) bool {
	return strings.HasPrefix(value, "http://") ||
		strings.HasPrefix(value, "https://") ||
		strings.HasPrefix(value, "local://")
}

// toLocalPath interprets /workspace/... and relative paths against
// workspace_root, matching _workspace_path_to_local in the original.
func (a *Adaptor) toLocalPath(value string) string {
	if filepath.IsAbs(value) && !strings.HasPrefix(value, "/workspace/") {
		return value
	}
	rel := strings.TrimPrefix(value, "/workspace/")
	return filepath.Join(a.cfg.WorkspaceRoot, rel)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(nested)
		} else {
			out[k] = v
		}
	}
	return out
}
