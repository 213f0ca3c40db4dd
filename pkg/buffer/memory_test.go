package buffer

import (
	"context"
	"testing"
	"time"

	"flowcore/pkg/event"
)

func mkLogEvent(msg string) event.Event {
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.PathMessage, event.String(msg))
	return event.NewLogEvent(l)
}

func TestMemoryBufferFIFO(t *testing.T) {
	b := NewMemoryBuffer(MemoryConfig{MaxEvents: 4})
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		if err := b.Send(ctx, mkLogEvent(m)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		e, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		v, _ := e.Log.Get(event.PathMessage)
		got, _ := v.AsBytes()
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestMemoryBufferDropNewest(t *testing.T) {
	b := NewMemoryBuffer(MemoryConfig{MaxEvents: 1, Policy: DropNewest})
	ctx := context.Background()

	var dropped event.Status = -1
	f := event.NewFinalizer(func(s event.Status) { dropped = s })

	b.Send(ctx, mkLogEvent("keep"))

	e := mkLogEvent("overflow")
	e.Metadata.AttachFinalizer(f)
	if err := b.Send(ctx, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != event.StatusDropped {
		t.Errorf("expected overflowed event finalizer to report Dropped, got %v", dropped)
	}
	if b.Stats().Overflowed != 1 {
		t.Errorf("expected overflow counter 1, got %d", b.Stats().Overflowed)
	}
}

func TestMemoryBufferBlockRespectsContext(t *testing.T) {
	b := NewMemoryBuffer(MemoryConfig{MaxEvents: 1, Policy: Block})
	ctx := context.Background()
	b.Send(ctx, mkLogEvent("first"))

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Send(cctx, mkLogEvent("second")); err == nil {
		t.Fatal("expected context deadline error on blocked send")
	}
}

func TestMemoryBufferOverflowChainsToNext(t *testing.T) {
	next := NewMemoryBuffer(MemoryConfig{MaxEvents: 4})
	b := NewMemoryBuffer(MemoryConfig{MaxEvents: 1, Policy: Overflow, Next: next})
	ctx := context.Background()

	b.Send(ctx, mkLogEvent("first"))
	if err := b.Send(ctx, mkLogEvent("spill")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, err := next.Receive(ctx)
	if err != nil {
		t.Fatalf("receive from overflow target: %v", err)
	}
	v, _ := e.Log.Get(event.PathMessage)
	got, _ := v.AsBytes()
	if string(got) != "spill" {
		t.Errorf("expected spilled event in next buffer, got %q", got)
	}
}

func TestMemoryBufferCloseUnblocksReceivers(t *testing.T) {
	b := NewMemoryBuffer(MemoryConfig{MaxEvents: 1})
	done := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()
	select {
	case err := <-done:
		if err != ErrClosed {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("receive did not unblock after close")
	}
}
