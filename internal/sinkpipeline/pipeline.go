package sinkpipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/pkg/codec"
	"flowcore/pkg/compression"
	"flowcore/pkg/event"
)

// Input is the consumer side of a topology edge buffer (see pkg/buffer.Buffer).
type Input interface {
	Receive(ctx context.Context) (event.Event, error)
}

// Config assembles one sink's full request pipeline.
type Config struct {
	Partition   Partitioner
	Batch       BatchConfig
	Serializer  codec.Serializer
	Join        JoinMode
	Compression compression.Algorithm
	Compressor  *compression.Compressor
	Service     ServiceConfig
	Transport   Transport
	Logger      *logrus.Logger
}

// Pipeline runs the full chain described in SPEC_FULL.md §4.7 over a
// sink's input channel.
type Pipeline struct {
	cfg     Config
	service *Service
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Pipeline{cfg: cfg, service: NewService(cfg.Service, cfg.Transport)}
}

// Run consumes events from in until it closes or ctx is cancelled,
// partitioning, batching, and dispatching each closed batch. On shutdown,
// any partially-filled batches are flushed and dispatched before Run
// returns, so no in-flight event is silently dropped.
func (p *Pipeline) Run(ctx context.Context, in Input) error {
	b := newBatcher(p.cfg.Batch)
	ticker := time.NewTicker(tickInterval(p.cfg.Batch.Timeout))
	defer ticker.Stop()

	dispatch := func(batch *Batch) {
		req, err := p.buildRequest(batch)
		if err != nil {
			p.cfg.Logger.WithError(err).WithField("key", batch.Key).Warn("sinkpipeline: batch encode failed, dropping")
			batch.Finalizer.Release(event.StatusRejected)
			for _, f := range batch.MemberFinalizers {
				f.Release(event.StatusRejected)
			}
			return
		}
		go p.service.Dispatch(ctx, req)
	}

	// Receive runs on its own goroutine so the main loop can still service
	// the batch timeout ticker while waiting on the next event — Receive
	// blocks indefinitely on an idle buffer, which would otherwise starve
	// timeout-based flushing of other partitions' pending batches.
	type received struct {
		e   event.Event
		err error
	}
	out := make(chan received)
	go func() {
		for {
			e, err := in.Receive(ctx)
			select {
			case out <- received{e, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			for _, batch := range b.flushAll() {
				dispatch(batch)
			}
			return ctx.Err()

		case <-ticker.C:
			for _, batch := range b.flushExpired() {
				dispatch(batch)
			}

		case r := <-out:
			if r.err != nil {
				for _, batch := range b.flushAll() {
					dispatch(batch)
				}
				return r.err
			}
			key, kerr := p.cfg.Partition(r.e)
			if kerr != nil {
				p.cfg.Logger.WithError(kerr).Warn("sinkpipeline: partition key render failed, dropping event")
				if r.e.Metadata.Finalizer != nil {
					r.e.Metadata.Finalizer.Release(event.StatusErrored)
				}
				continue
			}
			if batch := b.add(key, r.e); batch != nil {
				dispatch(batch)
			}
		}
	}
}

func (p *Pipeline) buildRequest(batch *Batch) (Request, error) {
	encoded, err := Encode(batch, p.cfg.Serializer, p.cfg.Join)
	if err != nil {
		return Request{}, err
	}
	result, err := Compress(encoded, p.cfg.Compression, p.cfg.Compressor)
	if err != nil {
		return Request{}, err
	}
	return buildRequest(batch, result.Data, result.Encoding, result.CompressedSize), nil
}

func tickInterval(batchTimeout time.Duration) time.Duration {
	if batchTimeout <= 0 {
		return 250 * time.Millisecond
	}
	d := batchTimeout / 4
	if d < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	return d
}
