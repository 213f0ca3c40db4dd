package event

// Type identifies which variant an Event holds.
type Type int

const (
	TypeLog Type = iota
	TypeMetric
	TypeTrace
)

func (t Type) String() string {
	switch t {
	case TypeLog:
		return "log"
	case TypeMetric:
		return "metric"
	case TypeTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Metadata carries the fields every event variant shares regardless of its
// payload: provenance, the finalizer chain, and a cached size estimate used
// for byte-based batching decisions in the sink pipeline.
type Metadata struct {
	Source    string
	Component string
	Finalizer *Finalizer
	sizeCache int
	sizeKnown bool
}

// AttachFinalizer installs f, replacing any previously attached finalizer.
func (m *Metadata) AttachFinalizer(f *Finalizer) { m.Finalizer = f }

// Event is the tagged union flowing through the topology: exactly one of
// Log, Metric, or Trace is populated, selected by Type.
type Event struct {
	Type     Type
	Log      *Log
	Metric   *Metric
	Trace    *Log // structurally a log; see NewTrace
	Metadata Metadata
}

// NewLogEvent wraps a Log as an Event.
func NewLogEvent(l *Log) Event {
	return Event{Type: TypeLog, Log: l}
}

// NewMetricEvent wraps a Metric as an Event.
func NewMetricEvent(m *Metric) Event {
	return Event{Type: TypeMetric, Metric: m}
}

// NewTraceEvent wraps a trace-shaped Log (conventionally carrying
// trace_id/span_id/kind/start/end fields) as an Event. A Trace has no
// distinguished schema at the core level beyond this convention.
func NewTraceEvent(l *Log) Event {
	return Event{Type: TypeTrace, Trace: l}
}

// AllocatedBytes approximates the event's heap footprint, memoized per
// instance; mutating the underlying Log/Metric after the first call
// invalidates the cache, so callers that mutate in place should call
// InvalidateSize.
func (e *Event) AllocatedBytes() int {
	if e.Metadata.sizeKnown {
		return e.Metadata.sizeCache
	}
	var n int
	switch e.Type {
	case TypeLog:
		for _, fp := range e.Log.AllFields() {
			n += len(fp.Path) + fp.Value.AllocatedBytes()
		}
	case TypeMetric:
		n = e.Metric.AllocatedBytes()
	case TypeTrace:
		for _, fp := range e.Trace.AllFields() {
			n += len(fp.Path) + fp.Value.AllocatedBytes()
		}
	}
	e.Metadata.sizeCache = n
	e.Metadata.sizeKnown = true
	return n
}

// InvalidateSize drops the cached size estimate after an in-place mutation.
func (e *Event) InvalidateSize() { e.Metadata.sizeKnown = false }

// Clone deep-copies the event's payload. The finalizer is NOT cloned — use
// Fork (via e.Metadata.Finalizer.Fork) when fanning out to multiple
// downstream branches so the original finalizer's refcount is tracked
// correctly.
func (e Event) Clone() Event {
	cp := e
	switch e.Type {
	case TypeLog:
		cp.Log = &Log{root: e.Log.root.clone(), namespace: e.Log.namespace}
	case TypeTrace:
		cp.Trace = &Log{root: e.Trace.root.clone(), namespace: e.Trace.namespace}
	case TypeMetric:
		m := *e.Metric
		m.Tags = append([]TagPair(nil), e.Metric.Tags...)
		cp.Metric = &m
	}
	cp.Metadata.sizeKnown = false
	return cp
}
