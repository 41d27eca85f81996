package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matsci/orchestrator/pkg/mcptool"
	"github.com/matsci/orchestrator/pkg/observability"
)

// Descriptor is the flat, transport-agnostic view of a tool the registry
// exposes to consumers: they see only name, description, input_schema, and
// an invoke closure, never the origin server or connection.
type Descriptor struct {
	QualifiedName string         `json:"qualified_name"`
	OriginServer  string         `json:"origin_server"`
	RemoteName    string         `json:"remote_name"`
	Description   string         `json:"description"`
	InputSchema   map[string]any `json:"input_schema"`
}

// Observation is the formatted outcome of an invoke call, ready to be
// appended to an agent's trajectory.
type Observation struct {
	Text    string
	IsError bool
}

// Meta carries invocation bookkeeping (origin server, remote name) back to
// callers that need it without re-deriving it from the qualified name.
type Meta struct {
	OriginServer string
	RemoteName   string
}

// InvokeFunc is the closure a ToolDirectory entry stores: it composes the
// Adaptor, the Bridge-submitted Connection call, and content formatting,
// exactly as spec §4.E describes.
type InvokeFunc func(ctx context.Context, rawArgs json.RawMessage) (Observation, Meta, error)

// entry pairs a Descriptor with its invoke closure.
type entry struct {
	Descriptor Descriptor
	Invoke     InvokeFunc
}

// ToolDirectory is the flat qualified_name -> callable mapping from spec
// §4.E, built on the generic BaseRegistry. Registration is idempotent per
// name; re-registering the same name is a programmer error (Register
// returns an error rather than overwriting).
type ToolDirectory struct {
	reg *BaseRegistry[entry]
}

// NewToolDirectory creates an empty directory.
func NewToolDirectory() *ToolDirectory {
	return &ToolDirectory{reg: NewBaseRegistry[entry]()}
}

// Register adds one tool under its qualified name.
func (d *ToolDirectory) Register(desc Descriptor, invoke InvokeFunc) error {
	if desc.QualifiedName == "" {
		return fmt.Errorf("registry: qualified_name cannot be empty")
	}
	return d.reg.Register(desc.QualifiedName, entry{Descriptor: desc, Invoke: invoke})
}

// Remove deletes a tool by qualified name. Removing an absent name is not an
// error (callers use it during teardown where "already gone" is fine).
func (d *ToolDirectory) Remove(qualifiedName string) {
	_ = d.reg.Remove(qualifiedName)
}

// RemoveServer removes every tool whose OriginServer matches name, used when
// a ToolServer transitions out of Ready.
func (d *ToolDirectory) RemoveServer(server string) {
	for _, e := range d.reg.List() {
		if e.Descriptor.OriginServer == server {
			d.reg.Remove(e.Descriptor.QualifiedName)
		}
	}
}

// Get returns the descriptor and invoke closure for a qualified name.
func (d *ToolDirectory) Get(qualifiedName string) (Descriptor, InvokeFunc, bool) {
	e, ok := d.reg.Get(qualifiedName)
	if !ok {
		return Descriptor{}, nil, false
	}
	return e.Descriptor, e.Invoke, true
}

// Invoke looks up qualifiedName and calls its invoke closure, wrapped in an
// OpenTelemetry span so every tool call is traceable end to end.
func (d *ToolDirectory) Invoke(ctx context.Context, qualifiedName string, rawArgs json.RawMessage) (Observation, Meta, error) {
	_, invoke, ok := d.Get(qualifiedName)
	if !ok {
		return Observation{}, Meta{}, fmt.Errorf("registry: tool %q not registered", qualifiedName)
	}

	ctx, span := observability.StartToolSpan(ctx, qualifiedName)
	defer span.End()

	return invoke(ctx, rawArgs)
}

// List returns every registered descriptor.
func (d *ToolDirectory) List() []Descriptor {
	entries := d.reg.List()
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Descriptor)
	}
	return out
}

// Names returns every registered qualified name.
func (d *ToolDirectory) Names() []string {
	entries := d.reg.List()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Descriptor.QualifiedName)
	}
	return out
}

// Count returns the number of registered tools.
func (d *ToolDirectory) Count() int { return d.reg.Count() }

// QualifiedName builds a qualified_name from a server name and a remote tool
// name, matching spec §3's `qualified_name = origin_server + "_" + remote_name`.
func QualifiedName(server, remote string) string {
	return server + "_" + remote
}

// DescriptorFromRemote builds a Descriptor from a server name and the
// RemoteTool a Connection's ListTools returned.
func DescriptorFromRemote(server string, t mcptool.RemoteTool) Descriptor {
	return Descriptor{
		QualifiedName: QualifiedName(server, t.Name),
		OriginServer:  server,
		RemoteName:    t.Name,
		Description:   t.Description,
		InputSchema:   t.InputSchema,
	}
}
