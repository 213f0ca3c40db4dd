package event

import "testing"

func TestParsePathDotted(t *testing.T) {
	p, err := ParsePath("a.b.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(p.Components))
	}
	for i, k := range []string{"a", "b", "c"} {
		if p.Components[i].Key != k {
			t.Errorf("component %d: expected %q, got %q", i, k, p.Components[i].Key)
		}
	}
}

func TestParsePathBracketIndex(t *testing.T) {
	p, err := ParsePath("items[2].name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(p.Components))
	}
	if p.Components[0].Key != "items" {
		t.Errorf("expected items, got %q", p.Components[0].Key)
	}
	if p.Components[1].Kind != ComponentIndex || p.Components[1].Index != 2 {
		t.Errorf("expected index 2, got %+v", p.Components[1])
	}
	if p.Components[2].Key != "name" {
		t.Errorf("expected name, got %q", p.Components[2].Key)
	}
}

func TestParsePathNegativeIndexRejected(t *testing.T) {
	if _, err := ParsePath("a[-1]"); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestParsePathEscapedDot(t *testing.T) {
	p, err := ParsePath(`a\.b.c`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(p.Components))
	}
	if p.Components[0].Key != "a.b" {
		t.Errorf("expected literal 'a.b', got %q", p.Components[0].Key)
	}
	if p.Components[1].Key != "c" {
		t.Errorf("expected 'c', got %q", p.Components[1].Key)
	}
}

func TestPathRoundTrip(t *testing.T) {
	for _, s := range []string{"a.b.c", "items[2].name", `a\.b`} {
		p, err := ParsePath(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := p.String(); got != s {
			t.Errorf("round trip %q: got %q", s, got)
		}
	}
}

func TestParsePathEmptyIndexRejected(t *testing.T) {
	if _, err := ParsePath("a[]"); err == nil {
		t.Fatal("expected error for empty index")
	}
}

func TestParsePathUnterminatedIndexRejected(t *testing.T) {
	if _, err := ParsePath("a[1"); err == nil {
		t.Fatal("expected error for unterminated index")
	}
}
