package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateSystemMetricsSeedsCPUWithoutPanicking(t *testing.T) {
	em := NewEnhancedMetrics(nil)
	require.NotPanics(t, func() { em.UpdateSystemMetrics() })

	cpuUtil, ioUtil := em.CPUIOUtilization()
	require.GreaterOrEqual(t, cpuUtil, 0.0)
	require.LessOrEqual(t, cpuUtil, 1.0)
	require.GreaterOrEqual(t, ioUtil, 0.0)
	require.LessOrEqual(t, ioUtil, 1.0)
}

func TestUpdateSystemMetricsComputesUtilizationOnSecondSample(t *testing.T) {
	em := NewEnhancedMetrics(nil)
	em.UpdateSystemMetrics() // first call only seeds lastCPUTimes
	em.UpdateSystemMetrics() // second call has a delta to compute from

	cpuUtil, ioUtil := em.CPUIOUtilization()
	require.GreaterOrEqual(t, cpuUtil, 0.0)
	require.LessOrEqual(t, cpuUtil, 1.0)
	require.GreaterOrEqual(t, ioUtil, 0.0)
}

func TestRegisterAllIsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		RegisterAll()
		RegisterAll()
	})
}
