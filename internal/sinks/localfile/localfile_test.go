package localfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flowcore/internal/sinkpipeline"
	"flowcore/pkg/event"
)

type queueInput struct {
	events []event.Event
	i      int
}

func (q *queueInput) Receive(ctx context.Context) (event.Event, error) {
	if q.i >= len(q.events) {
		<-ctx.Done()
		return event.Event{}, ctx.Err()
	}
	e := q.events[q.i]
	q.i++
	return e, nil
}

func newLogEvent(msg string) event.Event {
	l := event.NewLog(event.SchemaLegacy)
	l.Insert(event.PathMessage, event.String(msg))
	l.Insert(event.PathSource, event.String("test"))
	l.SetTimestamp(time.Now())
	return event.NewLogEvent(l)
}

func TestSinkWritesBatchToFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{
		Dir:   dir,
		Batch: sinkpipeline.BatchConfig{MaxEvents: 1, Timeout: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	in := &queueInput{events: []event.Event{newLogEvent("hello"), newLogEvent("world")}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx, in)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestSanitizeKeyReplacesUnsafeChars(t *testing.T) {
	require.Equal(t, "a_b_c", sanitizeKey("a/b c"))
	require.Equal(t, "default", sanitizeKey(""))
}

func TestFileForReusesExistingHandle(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{Dir: dir})
	require.NoError(t, err)

	f1, err := s.fileFor("demo")
	require.NoError(t, err)
	f2, err := s.fileFor("demo")
	require.NoError(t, err)
	require.Same(t, f1, f2)
	require.Equal(t, filepath.Join(dir, "demo.log"), f1.path)

	s.closeAll()
}
