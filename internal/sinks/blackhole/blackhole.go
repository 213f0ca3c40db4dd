// Package blackhole implements the teacher's test-double sink pattern
// (see internal/dispatcher's MockSink) promoted to a real topology.Sink:
// it accepts every batch, records counts for assertions/smoke tests, and
// never fails — useful for benchmarking the topology runtime in isolation
// from any real transport.
package blackhole

import (
	"context"
	"sync/atomic"

	"flowcore/internal/sinkpipeline"
	"flowcore/internal/topology"
)

// Sink discards every event, recording only counters.
type Sink struct {
	pipeline    *sinkpipeline.Pipeline
	eventCount  int64
	batchCount  int64
}

// Config configures a blackhole Sink.
type Config struct {
	Batch sinkpipeline.BatchConfig
}

func New(cfg Config) *Sink {
	s := &Sink{}
	s.pipeline = sinkpipeline.NewPipeline(sinkpipeline.Config{
		Partition: sinkpipeline.StaticPartitioner("blackhole"),
		Batch:     cfg.Batch,
		Service:   sinkpipeline.ServiceConfig{Concurrency: 4},
		Transport: s.transport,
	})
	return s
}

var _ topology.Sink = (*Sink)(nil)

func (s *Sink) transport(ctx context.Context, req sinkpipeline.Request) (interface{}, error) {
	atomic.AddInt64(&s.eventCount, int64(req.Metadata.EventCount))
	atomic.AddInt64(&s.batchCount, 1)
	return nil, nil
}

func (s *Sink) Run(ctx context.Context, in topology.Input) error {
	return s.pipeline.Run(ctx, in)
}

func (s *Sink) Healthcheck(ctx context.Context) error { return nil }

// EventCount reports how many events this sink has accepted, for test
// assertions.
func (s *Sink) EventCount() int64 { return atomic.LoadInt64(&s.eventCount) }

// BatchCount reports how many batches this sink has accepted.
func (s *Sink) BatchCount() int64 { return atomic.LoadInt64(&s.batchCount) }
