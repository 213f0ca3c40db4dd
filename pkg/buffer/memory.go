package buffer

import (
	"context"
	"sync/atomic"

	"flowcore/pkg/event"
)

// MemoryConfig configures a MemoryBuffer.
type MemoryConfig struct {
	MaxEvents int
	Policy    OverflowPolicy
	// Next receives spilled events when Policy == Overflow. Required in
	// that mode, ignored otherwise.
	Next Buffer
}

// MemoryBuffer is a bounded MPSC-style channel buffer carrying events by
// value, FIFO per sender. Byte accounting is not tracked (the spec does not
// require it for the memory variant); callers that need byte-based
// backpressure estimate from Event.AllocatedBytes on the hot path instead.
type MemoryBuffer struct {
	ch         chan event.Event
	cfg        MemoryConfig
	closed     int32
	closeCh    chan struct{}
	overflowed int64
}

// NewMemoryBuffer constructs a memory buffer per cfg.
func NewMemoryBuffer(cfg MemoryConfig) *MemoryBuffer {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1
	}
	return &MemoryBuffer{
		ch:      make(chan event.Event, cfg.MaxEvents),
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
}

func (b *MemoryBuffer) Send(ctx context.Context, e event.Event) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return ErrClosed
	}

	switch b.cfg.Policy {
	case DropNewest:
		select {
		case b.ch <- e:
			return nil
		default:
			atomic.AddInt64(&b.overflowed, 1)
			if e.Metadata.Finalizer != nil {
				e.Metadata.Finalizer.Release(event.StatusDropped)
			}
			return nil
		}
	case Overflow:
		select {
		case b.ch <- e:
			return nil
		default:
			if b.cfg.Next == nil {
				return ErrClosed
			}
			atomic.AddInt64(&b.overflowed, 1)
			return b.cfg.Next.Send(ctx, e)
		}
	default: // Block
		select {
		case b.ch <- e:
			return nil
		case <-b.closeCh:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *MemoryBuffer) Receive(ctx context.Context) (event.Event, error) {
	select {
	case e, ok := <-b.ch:
		if !ok {
			return event.Event{}, ErrClosed
		}
		return e, nil
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

func (b *MemoryBuffer) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	close(b.closeCh)
	close(b.ch)
	return nil
}

func (b *MemoryBuffer) Stats() Stats {
	return Stats{
		Events:     int64(len(b.ch)),
		Capacity:   int64(cap(b.ch)),
		ByBytes:    false,
		Overflowed: atomic.LoadInt64(&b.overflowed),
	}
}
