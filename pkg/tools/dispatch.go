package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("convoy.tools")

var (
	executionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convoy",
		Subsystem: "tools",
		Name:      "execution_seconds",
		Help:      "Tool invocation latency by tool name and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool", "outcome"})

	executionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convoy",
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Count of tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})
)

// MustRegisterMetrics registers the package's prometheus collectors on reg.
// Called once at server startup (SPEC_FULL.md §2 observability wiring).
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(executionDuration, executionTotal)
}

// maxResultTextBytes caps the text a tool result contributes to the
// working message list, regardless of origin (spec.md §4.1).
const maxResultTextBytes = 32 * 1024

// Dispatch resolves name against the registry's three partitions and
// invokes the corresponding backend, recording a trace span and
// prometheus metrics around the call (spec.md §4.7). It never returns a Go
// error for a tool-level failure: those are reported via Result.Success /
// Result.Error so the orchestrator can feed them back to the model as a
// tool_result message. A non-nil error return means the tool could not be
// resolved or dispatch itself failed outside of the tool's own control.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, caller CallerContext) (Result, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	r.mu.RLock()
	e, ok := r.lookup(name)
	r.mu.RUnlock()
	if !ok {
		err := &RegistryError{Action: "dispatch", Message: fmt.Sprintf("unknown tool %q", name)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordExecution(name, "not_found", time.Since(start))
		return Result{}, err
	}

	var result Result
	var err error
	switch e.Origin {
	case OriginBuiltin:
		result, err = dispatchBuiltin(ctx, e.builtin, args, caller)
	case OriginRemote:
		result, err = dispatchRemote(ctx, e.remoteServer, name, args)
	case OriginWebhook:
		result, err = callWebhook(ctx, *e.webhookConfig, args)
	default:
		err = &RegistryError{Action: "dispatch", Message: fmt.Sprintf("tool %q has unknown origin %q", name, e.Origin)}
	}

	duration := time.Since(start)
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !result.Success:
		outcome = "failure"
		span.SetStatus(codes.Error, result.Error)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("tool.origin", string(e.Origin)))
	recordExecution(name, outcome, duration)

	if len(result.Text) > maxResultTextBytes {
		result.Text = result.Text[:maxResultTextBytes] + "\n... truncated"
	}
	return result, err
}

func recordExecution(name, outcome string, d time.Duration) {
	executionDuration.WithLabelValues(name, outcome).Observe(d.Seconds())
	executionTotal.WithLabelValues(name, outcome).Inc()
}

func dispatchBuiltin(ctx context.Context, b *builtinImpl, args map[string]any, caller CallerContext) (Result, error) {
	var text string
	var err error
	switch {
	case b.withCtx != nil:
		text, err = b.withCtx(ctx, args, caller)
	case b.simple != nil:
		text, err = b.simple(ctx, args)
	default:
		return Result{}, fmt.Errorf("builtin has no implementation")
	}
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Text: text}, nil
}

func dispatchRemote(ctx context.Context, cfg *RemoteServerConfig, name string, args map[string]any) (Result, error) {
	if cfg == nil {
		return Result{}, fmt.Errorf("remote tool %s: server record missing", name)
	}
	if cfg.Disabled {
		return Result{Success: false, Error: "remote tool server is disabled"}, nil
	}
	switch cfg.Transport.Kind {
	case "stdio":
		adapter := newStdioRemoteAdapter(cfg.Transport.Command, cfg.Transport.Env)
		return adapter.CallTool(ctx, name, args)
	case "http":
		adapter := newHTTPRemoteAdapter(cfg.Transport.URL)
		return adapter.CallTool(ctx, name, args)
	default:
		return Result{}, fmt.Errorf("remote tool %s: unknown transport %q", name, cfg.Transport.Kind)
	}
}

// DiscoverRemoteTools connects to the given server record and returns the
// tool descriptors it advertises, for use by the Tool Catalogue Loader
// when populating a user's remote servers at the start of a turn.
func DiscoverRemoteTools(ctx context.Context, cfg RemoteServerConfig) ([]Descriptor, error) {
	switch cfg.Transport.Kind {
	case "stdio":
		return newStdioRemoteAdapter(cfg.Transport.Command, cfg.Transport.Env).discoverTools(ctx)
	case "http":
		return newHTTPRemoteAdapter(cfg.Transport.URL).discoverTools(ctx)
	default:
		return nil, fmt.Errorf("remote server %s: unknown transport %q", cfg.ServerID, cfg.Transport.Kind)
	}
}
