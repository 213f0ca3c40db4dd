package transforms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
)

func TestRedactScrubsPasswordField(t *testing.T) {
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.MustParsePath("message"), event.String("connecting with password=hunter2"))

	r := NewRedact(RedactConfig{RedactCreditCards: true})
	var out topology.OutputBuffer
	r.Transform(event.NewLogEvent(l), &out)

	require.Len(t, out.Events, 1)
	v, ok := out.Events[0].Log.Get(event.MustParsePath("message"))
	require.True(t, ok)
	require.Contains(t, v.Coerce(), "****")
	require.NotContains(t, v.Coerce(), "hunter2")
}

func TestRedactLeavesCleanFieldsUntouched(t *testing.T) {
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.MustParsePath("message"), event.String("all clear"))

	r := NewRedact(RedactConfig{})
	var out topology.OutputBuffer
	r.Transform(event.NewLogEvent(l), &out)

	v, _ := out.Events[0].Log.Get(event.MustParsePath("message"))
	require.Equal(t, "all clear", v.Coerce())
}

func TestRedactPassesMetricEventsThrough(t *testing.T) {
	r := NewRedact(RedactConfig{})
	var out topology.OutputBuffer
	r.Transform(event.NewMetricEvent(&event.Metric{Name: "m"}), &out)
	require.Len(t, out.Events, 1)
}
