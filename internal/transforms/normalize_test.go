package transforms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
)

func counterEvent(v float64, kind event.MetricKind) event.Event {
	return event.NewMetricEvent(&event.Metric{
		Name:  "reqs",
		Kind:  kind,
		Value: event.MetricValue{Kind: event.MVCounter, Counter: v},
	})
}

func TestToAbsoluteAccumulatesIncrementalCounters(t *testing.T) {
	ta := NewToAbsolute(NormalizeBounds{})

	var out topology.OutputBuffer
	ta.Transform(counterEvent(5, event.Incremental), &out)
	require.Equal(t, float64(5), out.Events[0].Metric.Value.Counter)

	out = topology.OutputBuffer{}
	ta.Transform(counterEvent(3, event.Incremental), &out)
	require.Equal(t, float64(8), out.Events[0].Metric.Value.Counter)
}

func TestToAbsolutePassesLogEventsThrough(t *testing.T) {
	ta := NewToAbsolute(NormalizeBounds{})
	l := event.NewLog(event.SchemaLegacy)
	var out topology.OutputBuffer
	ta.Transform(event.NewLogEvent(l), &out)
	require.Len(t, out.Events, 1)
}

func TestToIncrementalDropsFirstCounterBaselineWithFinalizerRelease(t *testing.T) {
	ti := NewToIncremental(NormalizeBounds{})

	var status event.Status
	e := counterEvent(10, event.Absolute)
	e.Metadata.Finalizer = event.NewFinalizer(func(s event.Status) { status = s })

	var out topology.OutputBuffer
	ti.Transform(e, &out)

	require.Empty(t, out.Events)
	require.Equal(t, event.StatusDropped, status)
}

func TestToIncrementalEmitsDeltaOnSecondSample(t *testing.T) {
	ti := NewToIncremental(NormalizeBounds{})

	var out topology.OutputBuffer
	ti.Transform(counterEvent(10, event.Absolute), &out)
	require.Empty(t, out.Events)

	out = topology.OutputBuffer{}
	ti.Transform(counterEvent(14, event.Absolute), &out)
	require.Len(t, out.Events, 1)
	require.Equal(t, float64(4), out.Events[0].Metric.Value.Counter)
}
