package buffer

import (
	"context"
	"testing"

	"flowcore/pkg/event"
)

func TestDiskBufferWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenDiskBuffer(DiskConfig{Dir: dir, MaxSizeBytes: 10 << 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	for _, m := range []string{"one", "two", "three"} {
		if err := b.Send(ctx, mkLogEvent(m)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		e, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		v, ok := e.Log.Get(event.PathMessage)
		if !ok {
			t.Fatal("expected message field")
		}
		got, _ := v.AsBytes()
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
		if e.Metadata.Finalizer == nil {
			t.Fatal("expected reader to attach a finalizer")
		}
		e.Metadata.Finalizer.Release(event.StatusDelivered)
	}
}

func TestDiskBufferSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b1, err := OpenDiskBuffer(DiskConfig{Dir: dir, MaxSizeBytes: 10 << 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b1.Send(ctx, mkLogEvent("persisted"))
	b1.Close()

	b2, err := OpenDiskBuffer(DiskConfig{Dir: dir, MaxSizeBytes: 10 << 20})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()

	e, err := b2.Receive(ctx)
	if err != nil {
		t.Fatalf("receive after reopen: %v", err)
	}
	v, _ := e.Log.Get(event.PathMessage)
	got, _ := v.AsBytes()
	if string(got) != "persisted" {
		t.Errorf("expected replayed event to survive restart, got %q", got)
	}
}

func TestDiskBufferAckAdvancesLedger(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b, err := OpenDiskBuffer(DiskConfig{Dir: dir, MaxSizeBytes: 10 << 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	b.Send(ctx, mkLogEvent("a"))
	e, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	before := b.ledger.snapshot().ReaderLastAckRecordID
	e.Metadata.Finalizer.Release(event.StatusDelivered)
	after := b.ledger.snapshot().ReaderLastAckRecordID
	if after <= before {
		t.Errorf("expected ack cursor to advance, before=%d after=%d", before, after)
	}
}

func TestDiskBufferRotatesDataFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b, err := OpenDiskBuffer(DiskConfig{Dir: dir, MaxSizeBytes: 10 << 20, DataFileSizeMax: 128})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	for i := 0; i < 20; i++ {
		if err := b.Send(ctx, mkLogEvent("payload-filling-bytes-to-force-rotation")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if b.ledger.snapshot().WriterCurrentDataFileID == 0 {
		t.Error("expected at least one file rotation with a tiny DataFileSizeMax")
	}

	for i := 0; i < 20; i++ {
		e, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		e.Metadata.Finalizer.Release(event.StatusDelivered)
	}
}
