// Package telemetry wires the mcp host into OpenTelemetry: a tracer for
// request spans and counters for the two host-level signals spec.md calls
// out (parser errors, tool calls). Grounded on the teacher's
// cmd/llm/main.go OTel wiring (go-client's otel.NewProvider) and go.mod's
// go.opentelemetry.io/otel/{metric,sdk,trace} stack. Non-goals exclude a
// bespoke metrics/observability surface, but the ambient OTel wiring the
// teacher carries is kept regardless, per the ambient-stack rule.
package telemetry

import (
	"context"

	otelclient "github.com/mutablelogic/go-client/pkg/otel"
	otelglobal "go.opentelemetry.io/otel"
	attribute "go.opentelemetry.io/otel/attribute"
	metric "go.opentelemetry.io/otel/metric"
	trace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// Provider owns the tracer and counters handed to the dispatcher and CLI.
type Provider struct {
	tracer         trace.Tracer
	parseErrors    metric.Int64Counter
	toolCalls      metric.Int64Counter
	shutdownClient *otelclient.Provider
}

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New connects to an OTLP collector at endpoint exactly as go-client's
// otel.NewProvider does for the teacher's CLI, and derives a tracer from
// it. The mcp-host counters are taken from the OpenTelemetry global
// meter provider (registered as a side effect of otelclient.NewProvider),
// so they still flow to the same collector without this package needing
// go-client's meter accessor. If endpoint is empty, New returns a no-op
// Provider: Tracer()/IncParseError()/IncToolCall() stay safe to call but
// do nothing.
func New(ctx context.Context, endpoint, header, serviceName string) (*Provider, error) {
	if endpoint == "" {
		return &Provider{tracer: tracenoop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	client, err := otelclient.NewProvider(endpoint, header, serviceName)
	if err != nil {
		return nil, err
	}

	meter := otelglobal.Meter(serviceName)
	parseErrors, err := meter.Int64Counter("mcp_host_parser_errors_total",
		metric.WithDescription("Number of malformed JSON-RPC frames rejected by the dispatcher"))
	if err != nil {
		client.Shutdown(ctx)
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("mcp_host_tool_calls_total",
		metric.WithDescription("Number of tools/call dispatches completed"))
	if err != nil {
		client.Shutdown(ctx)
		return nil, err
	}

	return &Provider{
		tracer:         client.Tracer(serviceName),
		parseErrors:    parseErrors,
		toolCalls:      toolCalls,
		shutdownClient: client,
	}, nil
}

// Shutdown flushes and closes the underlying OTLP client, if one was
// created.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdownClient == nil {
		return nil
	}
	return p.shutdownClient.Shutdown(ctx)
}

////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Tracer returns the tracer for request spans.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return tracenoop.NewTracerProvider().Tracer("mcp-host")
	}
	return p.tracer
}

// IncParseError records one malformed frame, for the parser-error budget
// metric.
func (p *Provider) IncParseError() {
	if p == nil || p.parseErrors == nil {
		return
	}
	p.parseErrors.Add(context.Background(), 1)
}

// IncToolCall records one completed tools/call dispatch, tagged by tool
// name.
func (p *Provider) IncToolCall(toolName string) {
	if p == nil || p.toolCalls == nil {
		return
	}
	p.toolCalls.Add(context.Background(), 1, metric.WithAttributes(attribute.String("tool", toolName)))
}
