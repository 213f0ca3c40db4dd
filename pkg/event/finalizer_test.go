package event

import "testing"

func TestFinalizerSingleReleaseDelivered(t *testing.T) {
	var got Status = -1
	f := NewFinalizer(func(s Status) { got = s })
	f.Release(StatusDelivered)
	if got != StatusDelivered {
		t.Errorf("expected delivered, got %v", got)
	}
}

func TestFinalizerClosedWithoutStatusIsDropped(t *testing.T) {
	var got Status = -1
	f := NewFinalizer(func(s Status) { got = s })
	f.Close()
	if got != StatusDropped {
		t.Errorf("expected dropped on silent close, got %v", got)
	}
}

func TestFinalizerFanOutRollsUpWorstStatus(t *testing.T) {
	var got Status = -1
	parent := NewFinalizer(func(s Status) { got = s })

	child1 := parent.Fork(nil)
	child2 := parent.Fork(nil)

	// the original reference plus two forks: release the original first.
	parent.Release(StatusDelivered)
	child1.Release(StatusDelivered)
	if got != -1 {
		t.Fatal("parent should not finalize before all children complete")
	}
	child2.Release(StatusErrored)

	if got != StatusErrored {
		t.Errorf("expected rolled-up worst status errored, got %v", got)
	}
}

func TestFinalizerNeverBecomesDeliveredAfterDrop(t *testing.T) {
	var got Status = -1
	f := NewFinalizer(func(s Status) { got = s })
	f.Update(StatusDropped)
	f.Release(StatusDelivered)
	if got != StatusDropped {
		t.Errorf("expected dropped to win over a later delivered update, got %v", got)
	}
}

func TestFinalizerMergeWaitsForBothParents(t *testing.T) {
	var got Status = -1
	merged := NewFinalizer(func(s Status) { got = s })

	other := NewFinalizer(nil)
	merged.Merge(other)

	merged.Release(StatusDelivered)
	if got != -1 {
		t.Fatal("merged finalizer should not complete before the adopted one does")
	}
	other.Release(StatusDelivered)
	if got != StatusDelivered {
		t.Errorf("expected delivered, got %v", got)
	}
}
