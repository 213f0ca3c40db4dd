package transforms

import (
	"flowcore/internal/topology"
	"flowcore/pkg/event"
	"flowcore/pkg/normalize"
)

// NormalizeBounds configures the MetricSet backing ToAbsolute/ToIncremental.
type NormalizeBounds struct {
	MaxEvents int
	MaxBytes  int
	TTL       int // seconds
}

func (b NormalizeBounds) toBounds() normalize.Bounds {
	return normalize.Bounds{
		MaxEvents: b.MaxEvents,
		MaxBytes:  b.MaxBytes,
		TTL:       secondsOrDefault(b.TTL),
	}
}

// ToAbsolute reconciles incoming metric samples of mixed kind into
// absolute-kind samples, per SPEC_FULL.md §4.5.2's make_absolute. Log and
// trace events pass through untouched.
//
// Grounded on pkg/normalize.Normalizer.MakeAbsolute; this type is the
// FunctionTransform adapter wiring it to a config-named transform kind.
type ToAbsolute struct {
	n *normalize.Normalizer
}

func NewToAbsolute(bounds NormalizeBounds) *ToAbsolute {
	return &ToAbsolute{n: normalize.NewNormalizer(bounds.toBounds())}
}

func (t *ToAbsolute) Transform(e event.Event, out *topology.OutputBuffer) {
	if e.Type != event.TypeMetric {
		out.Emit(e)
		return
	}
	abs := t.n.MakeAbsolute(e.Metric)
	ne := e
	ne.Metric = abs
	out.Emit(ne)
}

var _ topology.FunctionTransform = (*ToAbsolute)(nil)

// ToIncremental is the dual of ToAbsolute, per make_incremental. A metric
// may legitimately have no delta to emit yet (the first absolute sample for
// a counter-shaped series establishes a baseline rather than a value): the
// input is then dropped with event.StatusDropped rather than silently
// discarded, per the finalizer contract.
type ToIncremental struct {
	n *normalize.Normalizer
}

func NewToIncremental(bounds NormalizeBounds) *ToIncremental {
	return &ToIncremental{n: normalize.NewNormalizer(bounds.toBounds())}
}

func (t *ToIncremental) Transform(e event.Event, out *topology.OutputBuffer) {
	if e.Type != event.TypeMetric {
		out.Emit(e)
		return
	}
	inc := t.n.MakeIncremental(e.Metric)
	if inc == nil {
		if e.Metadata.Finalizer != nil {
			e.Metadata.Finalizer.Release(event.StatusDropped)
		}
		return
	}
	ne := e
	ne.Metric = inc
	out.Emit(ne)
}

var _ topology.FunctionTransform = (*ToIncremental)(nil)
