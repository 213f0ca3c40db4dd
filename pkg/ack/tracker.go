// Package ack implements the acknowledgement tracker described in
// SPEC_FULL.md §4.3: it wires event finalizers to a source's upstream
// commit offsets, so a source only advances its own checkpoint once every
// downstream sink that received a copy of an event has reported delivery.
//
// Grounded on the teacher's at-least-once bookkeeping, which was spread
// across internal/dispatcher/dispatcher.go's per-sink success counters and
// pkg/positions/backpressure.go's offset tracking; this package generalizes
// both into one source-agnostic tracker built on pkg/event.Finalizer.
package ack

import (
	"sync"

	"flowcore/pkg/event"
)

// OffsetCommitter is implemented by a source's checkpoint store (see
// pkg/positions): Commit advances the durable offset once it is safe to do
// so — i.e. once every event up to and including that offset has reached a
// terminal finalizer status.
type OffsetCommitter interface {
	Commit(offset uint64)
}

// pending tracks one in-flight offset waiting on its finalizer.
type pending struct {
	offset uint64
	status event.Status
	done   bool
}

// Tracker sequences finalizer completions against monotonically increasing
// source offsets, committing only the highest contiguous prefix of offsets
// that have all reached a terminal status.
//
// Acknowledgements are a per-source opt-in: when disabled (Enabled==false)
// the tracker hands back an already-satisfied finalizer so the source
// commits immediately on emit, per the spec's acknowledgements.enabled
// contract.
type Tracker struct {
	mu        sync.Mutex
	Enabled   bool
	committer OffsetCommitter
	nextWant  uint64
	inflight  map[uint64]*pending
}

// NewTracker returns a tracker that advances committer's offset as
// finalizers for each sequentially issued offset complete.
func NewTracker(enabled bool, committer OffsetCommitter) *Tracker {
	return &Tracker{
		Enabled:   enabled,
		committer: committer,
		inflight:  make(map[uint64]*pending),
	}
}

// Track attaches a finalizer to a newly produced event at the given source
// offset. If acknowledgements are disabled, it returns a no-op finalizer and
// the caller may commit offset immediately.
func (t *Tracker) Track(offset uint64) *event.Finalizer {
	if !t.Enabled {
		return event.Noop()
	}

	t.mu.Lock()
	p := &pending{offset: offset}
	t.inflight[offset] = p
	t.mu.Unlock()

	return event.NewFinalizer(func(s event.Status) {
		t.complete(offset, s)
	})
}

func (t *Tracker) complete(offset uint64, status event.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.inflight[offset]
	if !ok {
		return
	}
	p.status = status
	p.done = true

	// A finalizer in Dropped or Errored state never becomes Delivered; the
	// committer still advances past it (at-least-once, not exactly-once) —
	// the source is responsible for surfacing delivery failures via its own
	// retry/DLQ path, not by withholding the offset forever.
	committed := t.nextWant
	for {
		next, ok := t.inflight[committed]
		if !ok || !next.done {
			break
		}
		delete(t.inflight, committed)
		committed++
	}
	if committed > t.nextWant {
		t.nextWant = committed
		if t.committer != nil {
			t.committer.Commit(committed - 1)
		}
	}
}

// Pending reports how many offsets are still awaiting a terminal status.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
