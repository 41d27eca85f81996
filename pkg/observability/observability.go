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

// Package observability wires OpenTelemetry tracer spans around tool
// invocations (StartToolSpan, started by the ToolDirectory on every invoke)
// and exports StartPlanStepSpan for plan steps, which no package in this
// runtime calls. It also exposes a small set of Prometheus gauges
// for the supervisor's active-server count and the bridge's in-flight
// submissions. This is scoped to the runtime's own boundary: no metrics
// exporter HTTP server is started here (that belongs to the CLI entry
// point, which is out of scope per spec §1), so Handler returns a
// promhttp.Handler callers can mount wherever they already serve HTTP.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer name every span in this runtime is recorded under.
const tracerName = "github.com/matsci/orchestrator"

// InitTracerProvider installs a process-wide sdktrace.TracerProvider
// carrying serviceName as a resource attribute and returns a shutdown
// func. No exporter is attached by default — callers that want spans
// shipped somewhere register one via opts (e.g. an OTLP exporter), keeping
// this package free of a hard dependency on any particular backend.
func InitTracerProvider(ctx context.Context, serviceName string, opts ...sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the runtime's tracer, bound to whatever TracerProvider is
// currently global (a noop one until InitTracerProvider is called).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartToolSpan opens a span around one tool invocation.
func StartToolSpan(ctx context.Context, qualifiedName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.qualified_name", qualifiedName),
	))
}

// StartPlanStepSpan opens a span around one plan step's execution.
func StartPlanStepSpan(ctx context.Context, planID string, stepID int, toolName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "plan.step", trace.WithAttributes(
		attribute.String("plan.id", planID),
		attribute.Int("plan.step_id", stepID),
		attribute.String("plan.tool_name", toolName),
	))
}

// Metrics holds the runtime's Prometheus gauges.
type Metrics struct {
	registry *prometheus.Registry

	ActiveToolServers    prometheus.Gauge
	InFlightSubmissions  prometheus.Gauge
	RegisteredTools      prometheus.Gauge
}

// NewMetrics creates and registers the runtime's gauges in a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ActiveToolServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Name:      "active_tool_servers",
			Help:      "Number of tool-provider servers currently in the Ready state.",
		}),
		InFlightSubmissions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Name:      "bridge_in_flight_submissions",
			Help:      "Number of concurrency-bridge submissions currently awaiting a result.",
		}),
		RegisteredTools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Name:      "registered_tools",
			Help:      "Number of tools currently projected into the flat registry.",
		}),
	}

	reg.MustRegister(m.ActiveToolServers, m.InFlightSubmissions, m.RegisteredTools)
	return m
}

// Handler returns an http.Handler serving these gauges in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
