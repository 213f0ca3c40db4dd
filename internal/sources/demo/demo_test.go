package demo

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flowcore/pkg/event"
)

type countingOutput struct{ n int32 }

func (o *countingOutput) Send(ctx context.Context, e event.Event) error {
	atomic.AddInt32(&o.n, 1)
	return nil
}

func TestDemoSourceEmitsBoundedCount(t *testing.T) {
	src := New(Config{Interval: time.Millisecond, Count: 5})
	out := &countingOutput{}

	err := src.Run(context.Background(), out)
	require.NoError(t, err)
	require.EqualValues(t, 5, out.n)
}

func TestDemoSourceStopsOnContextCancel(t *testing.T) {
	src := New(Config{Interval: time.Millisecond})
	out := &countingOutput{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := src.Run(ctx, out)
	require.Error(t, err)
	require.Greater(t, int(atomic.LoadInt32(&out.n)), 0)
}
