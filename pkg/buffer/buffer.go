// Package buffer implements the two buffer variants described in
// SPEC_FULL.md §4.2: a bounded in-memory channel buffer and a durable
// on-disk buffer with a crash-consistent ledger+data-file format. Both
// expose the same send/receive contract so a topology edge can be backed by
// either, or chain memory into disk via the Overflow policy.
//
// Grounded on the teacher's pkg/buffer/disk_buffer.go (rotation, background
// sync/cleanup loops, length-prefixed records, glob-based recovery scan),
// generalized from *types.LogEntry to pkg/event.Event and reworked onto the
// ledger/data-file wire format the spec requires instead of the teacher's
// single growing file.
package buffer

import (
	"context"
	"errors"

	"flowcore/pkg/event"
)

// OverflowPolicy selects what happens when a buffer is at capacity.
type OverflowPolicy int

const (
	// Block suspends Send until space is available. Default.
	Block OverflowPolicy = iota
	// DropNewest succeeds immediately, discarding the event; its finalizer
	// is updated to Dropped.
	DropNewest
	// Overflow spills into a secondary buffer (chaining memory -> disk).
	Overflow
)

// ErrClosed is returned by Send/Receive once the buffer has been closed.
var ErrClosed = errors.New("buffer: closed")

// ErrCorrupt marks a record that failed its checksum on read; the caller
// should treat this as "skip and continue", not a fatal error.
var ErrCorrupt = errors.New("buffer: corrupt record")

// Buffer is the contract shared by the memory and disk implementations: a
// single-producer single-consumer durable queue with async send/receive.
// Multiple logical producers are realized by calling Send concurrently —
// implementations serialize writes internally.
type Buffer interface {
	// Send enqueues an event, applying the configured overflow policy if
	// the buffer is at capacity. Blocks (subject to ctx) under Block.
	Send(ctx context.Context, e event.Event) error
	// Receive dequeues the next event in FIFO order, blocking until one is
	// available or the buffer is closed.
	Receive(ctx context.Context) (event.Event, error)
	// Close shuts the buffer down; any buffered-but-unread events on a
	// durable buffer survive to the next open.
	Close() error
	// Stats reports current occupancy for telemetry/backpressure signaling.
	Stats() Stats
}

// Stats is the occupancy snapshot every Buffer implementation reports.
type Stats struct {
	Events     int64
	Bytes      int64
	Capacity   int64 // in the same unit as the configured limit
	ByBytes    bool  // true if Capacity is a byte bound (disk), false if event count (memory)
	Overflowed int64 // count of DropNewest discards so far
}
