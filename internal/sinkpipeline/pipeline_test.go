package sinkpipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"flowcore/pkg/buffer"
	"flowcore/pkg/codec"
	"flowcore/pkg/event"
)

func logEvent(n int) event.Event {
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.MustParsePath("n"), event.Integer(int64(n)))
	e := event.NewLogEvent(l)
	var delivered int32
	e.Metadata.AttachFinalizer(event.NewFinalizer(func(s event.Status) {
		if s == event.StatusDelivered {
			atomic.AddInt32(&delivered, 1)
		}
	}))
	return e
}

func TestPipelineBatchesAndDispatches(t *testing.T) {
	in := buffer.NewMemoryBuffer(buffer.MemoryConfig{MaxEvents: 16})
	for i := 0; i < 5; i++ {
		if err := in.Send(context.Background(), logEvent(i)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	in.Close()

	var dispatched int32
	cfg := Config{
		Partition:  StaticPartitioner("sink"),
		Batch:      BatchConfig{MaxEvents: 5, Timeout: 50 * time.Millisecond},
		Serializer: codec.JSONCodec{},
		Join:       JoinNewline,
		Service:    ServiceConfig{Concurrency: 2},
		Transport: func(ctx context.Context, req Request) (interface{}, error) {
			atomic.AddInt32(&dispatched, int32(req.Metadata.EventCount))
			return nil, nil
		},
	}
	p := NewPipeline(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.Run(ctx, in)
	if err != buffer.ErrClosed {
		t.Fatalf("expected ErrClosed on drained buffer, got %v", err)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&dispatched) < 5 {
		select {
		case <-deadline:
			t.Fatalf("dispatched only %d of 5 events", atomic.LoadInt32(&dispatched))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTemplatePartitionerRendersLogFields(t *testing.T) {
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.MustParsePath("host"), event.String("web-1"))
	e := event.NewLogEvent(l)

	part := TemplatePartitioner("logs/{host}/app")
	key, err := part(e)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if key != "logs/web-1/app" {
		t.Fatalf("got %q", key)
	}
}

func TestTemplatePartitionerRejectsNonLogEvent(t *testing.T) {
	m := &event.Metric{Name: "m"}
	e := event.NewMetricEvent(m)
	part := TemplatePartitioner("{host}")
	if _, err := part(e); err == nil {
		t.Fatalf("expected error partitioning a metric event with a log template")
	}
}
