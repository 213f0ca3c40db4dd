package codec

import (
	"strings"
	"testing"

	"flowcore/pkg/event"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSONCodec{}
	events, err := c.Deserialize([]byte(`{"message":"hello","count":3}`), event.SchemaLegacy)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	v, ok := events[0].Log.Get(event.PathMessage)
	if !ok {
		t.Fatal("expected message field")
	}
	if s, _ := v.AsBytes(); string(s) != "hello" {
		t.Errorf("expected hello, got %q", s)
	}

	out, err := c.Serialize(events[0])
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !strings.Contains(string(out), "hello") {
		t.Errorf("expected serialized output to contain hello, got %s", out)
	}
}

func TestLogfmtCodecRoundTrip(t *testing.T) {
	c := LogfmtCodec{}
	events, err := c.Deserialize([]byte(`level=info msg="hello world"`), event.SchemaLegacy)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	v, ok := events[0].Log.Get(event.MustParsePath("msg"))
	if !ok {
		t.Fatal("expected msg field")
	}
	if s, _ := v.AsBytes(); string(s) != "hello world" {
		t.Errorf("expected 'hello world', got %q", s)
	}
}

func TestInfluxdbCodecExpandsFieldsToMultipleMetrics(t *testing.T) {
	c := InfluxdbCodec{}
	events, err := c.Deserialize([]byte("cpu,host=a usage=0.5,idle=99.5 1000000000"), event.SchemaLegacy)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 metric events, got %d", len(events))
	}
	for _, e := range events {
		if e.Type != event.TypeMetric {
			t.Errorf("expected metric event, got %s", e.Type)
		}
	}
}

func TestNewlineDelimitedFramerDiscardsOverlength(t *testing.T) {
	f := NewlineDelimitedFramer(4)
	var frames [][]byte
	discarded, err := f.Frames(strings.NewReader("ok\ntoolongline\nok\n"), func(b []byte) {
		frames = append(frames, append([]byte(nil), b...))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discarded != 1 {
		t.Errorf("expected 1 discarded frame, got %d", discarded)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames kept, got %d", len(frames))
	}
}

func TestLengthDelimitedFramer(t *testing.T) {
	f := LengthDelimitedFramer{}
	buf := []byte{3, 0, 0, 0, 'a', 'b', 'c', 2, 0, 0, 0, 'x', 'y'}
	var got []string
	_, err := f.Frames(strings.NewReader(string(buf)), func(b []byte) { got = append(got, string(b)) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "abc" || got[1] != "xy" {
		t.Fatalf("unexpected frames: %v", got)
	}
}

func TestRegistryUnknownCodec(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Deserializer("protobuf"); err == nil {
		t.Fatal("expected error for unregistered protobuf deserializer")
	}
}
