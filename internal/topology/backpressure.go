package topology

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/pkg/backpressure"
)

// ResourceSampler reports point-in-time host resource utilization as
// fractions in [0, 1]. internal/metrics.EnhancedMetrics satisfies this via
// its gopsutil-backed CPUIOUtilization method.
type ResourceSampler interface {
	CPUIOUtilization() (cpuUtil, ioUtil float64)
}

// backpressureMonitor periodically feeds pkg/backpressure.Manager with the
// topology's current queue occupancy plus real CPU/IO utilization,
// replacing the teacher's dispatcher-local backpressureManager (fed by one
// fixed queue and a queueUtilization-derived CPU/IO guess) with a
// graph-wide view: queue utilization is the worst of every wired buffer,
// since any one saturated edge is enough to justify backing off.
//
// Grounded on internal/dispatcher/dispatcher.go's updateBackpressureMetrics
// (periodic UpdateMetrics call driving pkg/backpressure.Manager), adapted
// to topology's multi-buffer graph instead of one dispatcher queue.
type backpressureMonitor struct {
	manager  *backpressure.Manager
	sampler  ResourceSampler
	buffers  func() map[string]bufferStats
	interval time.Duration
	logger   *logrus.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// bufferStats is the subset of buffer.Stats the monitor needs, extracted
// as a free function argument so this file doesn't need to import
// pkg/buffer directly.
type bufferStats struct {
	events   int64
	capacity int64
}

func newBackpressureMonitor(logger *logrus.Logger, sampler ResourceSampler, buffers func() map[string]bufferStats) *backpressureMonitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &backpressureMonitor{
		manager:  backpressure.NewManager(backpressure.Config{}, logger),
		sampler:  sampler,
		buffers:  buffers,
		interval: 5 * time.Second,
		logger:   logger,
	}
}

// start begins the periodic sampling loop. It is a no-op if sampler is nil
// (no resource sampler was configured), since queue-only backpressure
// without any CPU/IO signal is not useful enough to run a goroutine for.
func (m *backpressureMonitor) start(ctx context.Context) {
	if m.sampler == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.sample()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

func (m *backpressureMonitor) sample() {
	var worstQueueUtil float64
	for _, s := range m.buffers() {
		if s.capacity <= 0 {
			continue
		}
		util := float64(s.events) / float64(s.capacity)
		if util > worstQueueUtil {
			worstQueueUtil = util
		}
	}

	cpuUtil, ioUtil := m.sampler.CPUIOUtilization()
	m.manager.UpdateMetrics(backpressure.Metrics{
		QueueUtilization:  worstQueueUtil,
		MemoryUtilization: 0, // process memory pressure is already its own gauge (metrics.MemoryUsage)
		CPUUtilization:    cpuUtil,
		IOUtilization:     ioUtil,
	})
}

func (m *backpressureMonitor) stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Status reports the monitor's current backpressure level and throttle
// factor, for the admin /topology surface.
func (m *backpressureMonitor) Status() (level string, factor float64) {
	return m.manager.GetLevel().String(), m.manager.GetFactor()
}
