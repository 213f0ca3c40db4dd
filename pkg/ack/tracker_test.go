package ack

import (
	"testing"

	"flowcore/pkg/event"
)

type fakeCommitter struct {
	committed []uint64
}

func (f *fakeCommitter) Commit(offset uint64) { f.committed = append(f.committed, offset) }

func TestTrackerCommitsInOrder(t *testing.T) {
	c := &fakeCommitter{}
	tr := NewTracker(true, c)

	f0 := tr.Track(0)
	f1 := tr.Track(1)
	f2 := tr.Track(2)

	// complete out of order: 1 then 0 then 2
	f1.Release(event.StatusDelivered)
	if len(c.committed) != 0 {
		t.Fatalf("offset 1 completing alone should not commit anything, got %v", c.committed)
	}
	f0.Release(event.StatusDelivered)
	if len(c.committed) != 2 || c.committed[len(c.committed)-1] != 1 {
		t.Fatalf("expected commit up through offset 1, got %v", c.committed)
	}
	f2.Release(event.StatusDelivered)
	if c.committed[len(c.committed)-1] != 2 {
		t.Fatalf("expected commit through offset 2, got %v", c.committed)
	}
}

func TestTrackerDisabledReturnsNoop(t *testing.T) {
	c := &fakeCommitter{}
	tr := NewTracker(false, c)
	f := tr.Track(5)
	// a noop finalizer does not block on anything and does not register
	// in-flight bookkeeping.
	if tr.Pending() != 0 {
		t.Errorf("disabled tracker should not track pending offsets")
	}
	f.Close()
}

func TestTrackerFanOutWaitsForWorstStatus(t *testing.T) {
	c := &fakeCommitter{}
	tr := NewTracker(true, c)

	f := tr.Track(0)
	child1 := f.Fork(nil)
	child2 := f.Fork(nil)
	f.Release(event.StatusDelivered)
	child1.Release(event.StatusDelivered)
	if len(c.committed) != 0 {
		t.Fatal("should not commit until all fan-out branches complete")
	}
	child2.Release(event.StatusErrored)
	if len(c.committed) != 1 {
		t.Fatal("expected commit once all branches complete, even with an errored branch")
	}
}
