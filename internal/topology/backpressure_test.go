package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackpressureMonitorSampleRaisesLevelUnderFullSaturation(t *testing.T) {
	buffers := map[string]bufferStats{"edge": {events: 100, capacity: 100}}
	m := newBackpressureMonitor(nil, stubSampler{cpu: 1, io: 1}, func() map[string]bufferStats { return buffers })

	m.sample()

	// Queue(0.3) + CPU(0.2) + IO(0.15) weighted fully saturated = 0.65,
	// which crosses pkg/backpressure's default LowThreshold (0.6) but not
	// Medium (0.75); memory utilization isn't fed by this monitor (it's
	// already its own gauge via internal/metrics.MemoryUsage), so "low" is
	// the ceiling a queue+CPU+IO-only saturation reading can reach.
	level, factor := m.Status()
	require.Equal(t, "low", level)
	require.Less(t, factor, 1.0)
}

func TestBackpressureMonitorSampleStaysNoneWhenIdle(t *testing.T) {
	buffers := map[string]bufferStats{"edge": {events: 0, capacity: 100}}
	m := newBackpressureMonitor(nil, stubSampler{cpu: 0, io: 0}, func() map[string]bufferStats { return buffers })

	m.sample()

	level, factor := m.Status()
	require.Equal(t, "none", level)
	require.Equal(t, 1.0, factor)
}

func TestBackpressureMonitorStartNoopsWithoutSampler(t *testing.T) {
	m := newBackpressureMonitor(nil, nil, func() map[string]bufferStats { return nil })
	m.start(nil) // must not panic or block despite a nil context
	m.stop()     // must not block waiting on a done channel that was never created
}
