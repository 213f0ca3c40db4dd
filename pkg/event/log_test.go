package event

import "testing"

func TestLogInsertGetRemove(t *testing.T) {
	l := NewLog(SchemaLegacy)

	p := MustParsePath("request.method")
	if prev, existed := l.Insert(p, String("GET")); existed {
		t.Errorf("expected no previous value, got %+v", prev)
	}

	v, ok := l.Get(p)
	if !ok {
		t.Fatal("expected value to be present")
	}
	if s, _ := v.AsBytes(); string(s) != "GET" {
		t.Errorf("expected GET, got %q", s)
	}

	prev, existed := l.Insert(p, String("POST"))
	if !existed {
		t.Fatal("expected previous value to exist")
	}
	if s, _ := prev.AsBytes(); string(s) != "GET" {
		t.Errorf("expected previous GET, got %q", s)
	}

	removed, existed := l.Remove(p, true)
	if !existed {
		t.Fatal("expected removal to report existing value")
	}
	if s, _ := removed.AsBytes(); string(s) != "POST" {
		t.Errorf("expected removed POST, got %q", s)
	}
	if _, ok := l.Get(p); ok {
		t.Error("expected value gone after remove")
	}
	// prune should have removed the now-empty "request" object too
	if _, ok := l.Get(MustParsePath("request")); ok {
		t.Error("expected empty parent pruned")
	}
}

func TestLogInsertAutoCreatesIntermediates(t *testing.T) {
	l := NewLog(SchemaVector)
	l.Insert(MustParsePath("a.b.c"), Integer(42))
	v, ok := l.Get(MustParsePath("a.b.c"))
	if !ok {
		t.Fatal("expected value present")
	}
	if n, _ := v.AsInteger(); n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

func TestLogArrayIndexing(t *testing.T) {
	l := NewLog(SchemaLegacy)
	l.Insert(MustParsePath("tags[0]"), String("a"))
	l.Insert(MustParsePath("tags[2]"), String("c"))

	v0, ok := l.Get(MustParsePath("tags[0]"))
	if !ok {
		t.Fatal("expected tags[0]")
	}
	if s, _ := v0.AsBytes(); string(s) != "a" {
		t.Errorf("expected a, got %q", s)
	}

	v1, ok := l.Get(MustParsePath("tags[1]"))
	if !ok {
		t.Fatal("expected tags[1] to exist as padding")
	}
	if !v1.IsNull() {
		t.Errorf("expected null padding, got %v", v1.Kind())
	}
}

func TestLogKeysOrderedByInsertion(t *testing.T) {
	l := NewLog(SchemaLegacy)
	l.Insert(MustParsePath("z"), Integer(1))
	l.Insert(MustParsePath("a"), Integer(2))
	l.Insert(MustParsePath("m"), Integer(3))

	keys := l.Keys()
	want := []string{"z", "a", "m"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], keys[i])
		}
	}
}

func TestLogRenameKeyIdempotent(t *testing.T) {
	l := NewLog(SchemaLegacy)
	l.Insert(MustParsePath("old"), Integer(1))

	if err := l.RenameKey("missing", "new", false); err != nil {
		t.Fatalf("rename of absent key should be a no-op, got %v", err)
	}

	if err := l.RenameKey("old", "new", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := l.Get(MustParsePath("old")); ok {
		t.Error("old key should be gone")
	}
	if _, ok := l.Get(MustParsePath("new")); !ok {
		t.Error("new key should exist")
	}
}

func TestLogRenameKeyNoOverwriteConflict(t *testing.T) {
	l := NewLog(SchemaLegacy)
	l.Insert(MustParsePath("a"), Integer(1))
	l.Insert(MustParsePath("b"), Integer(2))

	if err := l.RenameKey("a", "b", true); err == nil {
		t.Fatal("expected error when target exists and noOverwrite is set")
	}
}

func TestLogAllFields(t *testing.T) {
	l := NewLog(SchemaLegacy)
	l.Insert(MustParsePath("a"), Integer(1))
	l.Insert(MustParsePath("b.c"), String("x"))

	fields := l.AllFields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 leaf fields, got %d: %+v", len(fields), fields)
	}
}
