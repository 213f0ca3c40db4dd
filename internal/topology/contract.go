// Package topology implements the DAG builder and controller described in
// SPEC_FULL.md §4.4: validating a configured component graph, wiring
// buffers between edges, spawning one task per component in dependency
// order, hot-reloading a changed graph, and draining/shutting down on
// signal.
//
// Grounded on internal/dispatcher/dispatcher.go's lifecycle
// (Start/Stop/worker/drainQueue), generalized from one fixed dispatcher
// loop into an arbitrary source/transform/sink graph, plus
// pkg/task_manager's per-task heartbeat/cleanup shape for the supervisor.
package topology

import (
	"context"

	"flowcore/pkg/codec"
	"flowcore/pkg/event"
)

// ComponentKey names a component within a running topology: (scope?, id).
// The id is unique within a topology; scope namespaces ids belonging to the
// same logical component group (e.g. a transform with multiple named
// outputs).
type ComponentKey struct {
	Scope string
	ID    string
}

func (k ComponentKey) String() string {
	if k.Scope == "" {
		return k.ID
	}
	return k.Scope + "." + k.ID
}

// DataType re-exports codec.DataType: the per-edge type compatibility check
// in §4.4.1 uses the same Logs|Metrics|Traces|Any classification the codec
// layer uses for what a deserializer produces / a serializer accepts.
type DataType = codec.DataType

const (
	DataAny     = codec.DataAny
	DataLogs    = codec.DataLogs
	DataMetrics = codec.DataMetrics
	DataTraces  = codec.DataTraces
)

// Output is what a Source or Transform writes events into: the input side
// of a downstream buffer; fan-out to several downstreams is handled by the
// fanout wrapper in edge.go, never by Output itself.
type Output interface {
	Send(ctx context.Context, e event.Event) error
}

// Input is what a Sink or Transform reads events from: the output side of
// an upstream buffer.
type Input interface {
	Receive(ctx context.Context) (event.Event, error)
}

// Source is a conforming ingress component (§6.2): Run drives external
// input into out until ctx is cancelled, then closes out's upstream buffer
// itself is NOT Source's job (the controller closes buffers on shutdown
// once every upstream task has exited) — Run simply returns once it has
// stopped polling and drained anything already read.
type Source interface {
	Run(ctx context.Context, out Output) error
}

// Sink is a conforming egress component (§6.3): Run consumes in until it
// closes, reporting per-batch delivery status via event finalizers.
type Sink interface {
	Run(ctx context.Context, in Input) error
	Healthcheck(ctx context.Context) error
}

// OutputBuffer accumulates the zero-or-more events a FunctionTransform
// produces for one input event.
type OutputBuffer struct {
	Events []event.Event
}

func (o *OutputBuffer) Emit(e event.Event) { o.Events = append(o.Events, e) }

// FunctionTransform is a per-event transform with no suspension: it runs
// inline on the caller's task (§4.4.3). Splitting one event into N should
// Fork the input's finalizer N times (via e.Metadata.Finalizer.Fork) before
// emitting the N outputs; dropping the input silently is never correct —
// an explicit Release(Dropped) (or Rejected/Errored) must be issued when no
// output is emitted for an input that carried a finalizer.
type FunctionTransform interface {
	Transform(e event.Event, out *OutputBuffer)
}

// TaskTransform owns its own task, state, and timing (windowing,
// aggregation, cardinality limiting): it consumes in and produces into out
// until ctx is cancelled.
type TaskTransform interface {
	Run(ctx context.Context, in Input, out Output) error
}

// Healthcheck is implemented by any component the controller should probe
// during startup/reload per §4.4.4's require_healthy gate.
type Healthcheck interface {
	Healthcheck(ctx context.Context) error
}
