// Package tracing wraps pkg/tracing.TracingManager with the span shapes
// SPEC_FULL.md §6.6 names for the topology runtime: request/response spans
// around sink dispatch and a span bracketing each topology reload, plus the
// admin-triggered on-demand sampling controls a hybrid-mode deployment
// needs (pkg/tracing's AdaptiveSampler and OnDemandController).
//
// Grounded on pkg/tracing.TracingManager for the span plumbing, and on
// pkg/tracing.EnhancedTracingManager's on-demand/adaptive-sampling
// machinery, generalized from *types.LogEntry-keyed sampling decisions to
// the dispatch-latency and source-ID inputs available here.
package tracing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"flowcore/pkg/tracing"
)

// Tracer brackets topology operations with OTel spans.
type Tracer struct {
	manager *tracing.TracingManager
}

func New(cfg tracing.TracingConfig, logger *logrus.Logger) (*Tracer, error) {
	m, err := tracing.NewTracingManager(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Tracer{manager: m}, nil
}

// Span starts a span named name and returns it alongside a derived context;
// the caller must End() it.
func (t *Tracer) Span(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return t.manager.GetTracer().Start(ctx, name)
}

// WrapReload runs fn inside a "topology.reload" span, recording the error
// (if any) as a span event.
func (t *Tracer) WrapReload(ctx context.Context, fn func(context.Context) error) error {
	ctx, span := t.Span(ctx, "topology.reload")
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// DispatchHook returns a sinkpipeline.ServiceConfig.Trace-shaped function
// that brackets one dispatch call in a "sink.dispatch" span tagged with the
// sink's name and partition key, and feeds the call's latency to the
// adaptive sampler so a slowing sink raises its own future sampling rate.
func (t *Tracer) DispatchHook(sinkName string) func(ctx context.Context, key string) (context.Context, func(error)) {
	return func(ctx context.Context, key string) (context.Context, func(error)) {
		start := time.Now()
		ctx, span := t.Span(ctx, "sink.dispatch")
		span.SetAttributes(
			attribute.String("sink.name", sinkName),
			attribute.String("partition.key", key),
		)
		return ctx, func(err error) {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
			t.manager.RecordDispatchLatency(time.Since(start))
		}
	}
}

// EnableOnDemand turns on per-source event tracing for duration,
// overriding the base sampling rate, for an admin-triggered "trace this
// source for N minutes" operation (SPEC_FULL.md §6.6).
func (t *Tracer) EnableOnDemand(sourceID string, rate float64, duration time.Duration) error {
	return t.manager.EnableOnDemand(sourceID, rate, duration)
}

// DisableOnDemand cancels sourceID's on-demand rule early, if any.
func (t *Tracer) DisableOnDemand(sourceID string) {
	t.manager.DisableOnDemand(sourceID)
}

// OnDemandRules reports every currently active on-demand rule.
func (t *Tracer) OnDemandRules() []map[string]interface{} {
	return t.manager.OnDemandRules()
}

func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.manager.Shutdown(ctx)
}
