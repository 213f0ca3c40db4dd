package event

import "sync"

// Status is the terminal outcome a finalizer reports once its refcount
// reaches zero.
type Status int

const (
	// StatusDelivered is the success terminal: every sink that received a
	// copy reported delivery.
	StatusDelivered Status = iota
	// StatusRecorded is success for events captured into a durable buffer
	// but not yet delivered downstream.
	StatusRecorded
	// StatusRejected means a downstream component refused the event
	// (e.g. cardinality limiter DropEvent).
	StatusRejected
	// StatusErrored means delivery was attempted and failed.
	StatusErrored
	// StatusDropped is the default for a finalizer closed without an
	// explicit status, and for buffer overflow drops.
	StatusDropped
)

// severity orders statuses from best to worst outcome; rollup keeps the
// highest-severity (worst) status observed across all contributors.
func (s Status) severity() int {
	switch s {
	case StatusDelivered:
		return 0
	case StatusRecorded:
		return 1
	case StatusRejected:
		return 2
	case StatusErrored:
		return 3
	case StatusDropped:
		return 4
	default:
		return 4
	}
}

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRecorded:
		return "recorded"
	case StatusRejected:
		return "rejected"
	case StatusErrored:
		return "errored"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// worse returns the higher-severity of the two statuses.
func worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// OnFinalize is invoked exactly once, when a finalizer's refcount reaches
// zero, with the rolled-up status.
type OnFinalize func(Status)

// Finalizer is a reference-counted status cell shared between the source
// that produced an event and the sinks that consume copies of it. When the
// last reference is released, the highest-severity status observed is
// forwarded to the registered callback.
//
// Grounded on the at-least-once bookkeeping spread across the teacher's
// dispatcher (internal/dispatcher/dispatcher.go, per-sink success counters)
// and pkg/positions/backpressure.go, consolidated into one generic type per
// the event model's finalizer contract.
type Finalizer struct {
	mu       sync.Mutex
	refcount int
	status   Status
	closed   bool
	onFinal  OnFinalize
	// parent, if set, receives this finalizer's rolled-up status as one of
	// its own contributions (fan-out/fan-in propagation).
	parent *Finalizer
}

// NewFinalizer returns a finalizer with one reference held, invoking cb
// exactly once when the refcount reaches zero.
func NewFinalizer(cb OnFinalize) *Finalizer {
	return &Finalizer{refcount: 1, status: StatusDelivered, onFinal: cb}
}

// Noop returns a finalizer that is immediately satisfied — used when
// acknowledgements are disabled globally or the source did not opt in, so
// the source can commit as soon as it emits.
func Noop() *Finalizer {
	f := &Finalizer{refcount: 1, status: StatusDelivered}
	f.Update(StatusDelivered)
	return f
}

// AddRef increments the reference count, used when an event is cloned for
// fan-out to multiple downstream sinks or child finalizers.
func (f *Finalizer) AddRef() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.refcount++
}

// Update records an observed status without releasing a reference. The
// stored status is the worst of all updates seen so far.
func (f *Finalizer) Update(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = worse(f.status, s)
}

// Release drops one reference with the given status. When the refcount
// reaches zero the rolled-up status is delivered to the callback (and to
// the parent finalizer, if chained) exactly once.
func (f *Finalizer) Release(s Status) {
	f.mu.Lock()
	f.status = worse(f.status, s)
	f.refcount--
	if f.refcount > 0 {
		f.mu.Unlock()
		return
	}
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	final := f.status
	cb := f.onFinal
	parent := f.parent
	f.mu.Unlock()

	if cb != nil {
		cb(final)
	}
	if parent != nil {
		parent.Release(final)
	}
}

// Close releases the finalizer without an explicit status: per the
// invariant that a finalizer is never dropped silently, this always yields
// StatusDropped.
func (f *Finalizer) Close() {
	f.Release(StatusDropped)
}

// Fork creates a new child finalizer for one branch of a fan-out split; the
// child's rolled-up status is propagated into the parent on completion, so
// the parent only reaches its own terminal state once every fan-out branch
// has.
func (f *Finalizer) Fork(cb OnFinalize) *Finalizer {
	f.AddRef()
	child := NewFinalizer(cb)
	child.parent = f
	return child
}

// Merge folds another finalizer's lifetime into this one, used when a
// transform combines N events into one: the combined event's finalizer
// completes only once every adopted finalizer has.
func (f *Finalizer) Merge(other *Finalizer) {
	f.AddRef()
	other.mu.Lock()
	other.parent = f
	other.mu.Unlock()
}
