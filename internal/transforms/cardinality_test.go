package transforms

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
)

func taggedMetric(tagValue string) event.Event {
	return event.NewMetricEvent(&event.Metric{
		Name: "reqs",
		Tags: []event.TagPair{{Key: "user_id", Value: tagValue}},
	})
}

func TestCardinalityLimitDropsTagOnceLimitReached(t *testing.T) {
	cl := NewCardinalityLimit(CardinalityLimitConfig{MaxValues: 2, DropEvent: false})

	var out topology.OutputBuffer
	for i := 0; i < 3; i++ {
		out = topology.OutputBuffer{}
		cl.Transform(taggedMetric(fmt.Sprintf("u%d", i)), &out)
		require.Len(t, out.Events, 1)
	}

	require.Empty(t, out.Events[0].Metric.Tags)
}

func TestCardinalityLimitDropsEventWhenConfigured(t *testing.T) {
	cl := NewCardinalityLimit(CardinalityLimitConfig{MaxValues: 1, DropEvent: true})

	var out topology.OutputBuffer
	cl.Transform(taggedMetric("u0"), &out)
	require.Len(t, out.Events, 1)

	var status event.Status
	e := taggedMetric("u1")
	e.Metadata.Finalizer = event.NewFinalizer(func(s event.Status) { status = s })
	out = topology.OutputBuffer{}
	cl.Transform(e, &out)

	require.Empty(t, out.Events)
	require.Equal(t, event.StatusRejected, status)
}

func TestCardinalityLimitPassesLogEventsThrough(t *testing.T) {
	cl := NewCardinalityLimit(CardinalityLimitConfig{})
	l := event.NewLog(event.SchemaLegacy)
	var out topology.OutputBuffer
	cl.Transform(event.NewLogEvent(l), &out)
	require.Len(t, out.Events, 1)
}
