package sinkpipeline

import (
	"time"

	"flowcore/pkg/event"
)

// BatchConfig bounds one partition's accumulation window, per
// SPEC_FULL.md §4.7.2: a batch closes on the first of max events, max
// bytes (using Event.AllocatedBytes as the estimated JSON-encoded size), or
// a timeout since the batch started.
type BatchConfig struct {
	MaxEvents int
	MaxBytes  int
	Timeout   time.Duration
}

func (c *BatchConfig) setDefaults() {
	if c.MaxEvents <= 0 {
		c.MaxEvents = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
}

// Batch is one closed batch of events sharing a partition key, emitted in
// FIFO order per key (cross-key emission order is not guaranteed, per
// SPEC_FULL.md §4.7.2).
//
// Finalizer holds the pipeline's own reference into the rolled-up parent
// (see Merge's refcounting): the dispatcher must release it, plus every
// entry in MemberFinalizers, with the batch's terminal status once the
// transport call resolves — that is what drains the parent to zero and
// lets each original per-event finalizer complete in turn.
type Batch struct {
	Key              string
	Events           []event.Event
	Finalizer        *event.Finalizer
	MemberFinalizers []*event.Finalizer
	Bytes            int
}

// batcher accumulates per-key events until a bound fires. It is driven by a
// single goroutine (see Pipeline.Run), so no internal locking is needed.
type batcher struct {
	cfg     BatchConfig
	pending map[string]*pendingBatch
	started map[string]time.Time
}

type pendingBatch struct {
	events []event.Event
	bytes  int
	finals []*event.Finalizer
}

func newBatcher(cfg BatchConfig) *batcher {
	cfg.setDefaults()
	return &batcher{cfg: cfg, pending: make(map[string]*pendingBatch), started: make(map[string]time.Time)}
}

// add appends e to its partition's pending batch, returning a closed Batch
// if this push crossed a size bound.
func (b *batcher) add(key string, e event.Event) *Batch {
	p, ok := b.pending[key]
	if !ok {
		p = &pendingBatch{}
		b.pending[key] = p
		b.started[key] = time.Now()
	}
	p.events = append(p.events, e)
	p.bytes += e.AllocatedBytes()
	if e.Metadata.Finalizer != nil {
		p.finals = append(p.finals, e.Metadata.Finalizer)
	}

	if len(p.events) >= b.cfg.MaxEvents || (b.cfg.MaxBytes > 0 && p.bytes >= b.cfg.MaxBytes) {
		return b.closeKey(key)
	}
	return nil
}

// flushExpired closes any pending batch whose timeout has elapsed.
func (b *batcher) flushExpired() []*Batch {
	var out []*Batch
	now := time.Now()
	for key, start := range b.started {
		if now.Sub(start) >= b.cfg.Timeout {
			if batch := b.closeKey(key); batch != nil {
				out = append(out, batch)
			}
		}
	}
	return out
}

// flushAll closes every pending batch, used on shutdown drain.
func (b *batcher) flushAll() []*Batch {
	var out []*Batch
	for key := range b.pending {
		if batch := b.closeKey(key); batch != nil {
			out = append(out, batch)
		}
	}
	return out
}

func (b *batcher) closeKey(key string) *Batch {
	p, ok := b.pending[key]
	if !ok || len(p.events) == 0 {
		return nil
	}
	delete(b.pending, key)
	delete(b.started, key)

	parent := event.NewFinalizer(nil)
	for _, f := range p.finals {
		parent.Merge(f)
	}
	// parent started with refcount 1 for itself plus one AddRef per Merge;
	// service.go releases the parent's self-hold and every member finalizer
	// once the batch's terminal status is known.
	return &Batch{Key: key, Events: p.events, Finalizer: parent, MemberFinalizers: p.finals, Bytes: p.bytes}
}

// nextDeadline returns the earliest time any pending batch's timeout will
// fire, used to size the batcher's flush timer.
func (b *batcher) nextDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, start := range b.started {
		deadline := start.Add(b.cfg.Timeout)
		if !found || deadline.Before(earliest) {
			earliest = deadline
			found = true
		}
	}
	return earliest, found
}
