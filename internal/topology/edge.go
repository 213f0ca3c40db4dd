package topology

import (
	"context"

	"flowcore/pkg/buffer"
	"flowcore/pkg/event"
)

// bufferOutput adapts a buffer.Buffer to the Output contract.
type bufferOutput struct {
	buf buffer.Buffer
}

func (o bufferOutput) Send(ctx context.Context, e event.Event) error { return o.buf.Send(ctx, e) }

// bufferInput adapts a buffer.Buffer to the Input contract.
type bufferInput struct {
	buf buffer.Buffer
}

func (i bufferInput) Receive(ctx context.Context) (event.Event, error) { return i.buf.Receive(ctx) }

// fanout is the Output a component with N>1 downstream edges writes into:
// one send becomes N sends, one per downstream buffer, with the event's
// finalizer Forked per branch so the upstream only reaches its terminal
// status once every downstream branch has reached its own (§4.4.2's "an
// edge with multiple downstreams forks the finalizer, never shares it").
type fanout struct {
	downstreams []Output
}

func newFanout(downstreams ...Output) Output {
	if len(downstreams) == 1 {
		return downstreams[0]
	}
	return &fanout{downstreams: downstreams}
}

func (f *fanout) Send(ctx context.Context, e event.Event) error {
	if len(f.downstreams) == 0 {
		return nil
	}
	parent := e.Metadata.Finalizer

	for i, d := range f.downstreams {
		branch := e.Clone()
		if parent != nil {
			if i == len(f.downstreams)-1 {
				// last branch reuses the parent reference directly instead
				// of forking-then-releasing the original, avoiding one
				// redundant refcount round trip.
				branch.Metadata.AttachFinalizer(parent)
			} else {
				branch.Metadata.AttachFinalizer(parent.Fork(nil))
			}
		}
		if err := d.Send(ctx, branch); err != nil {
			if branch.Metadata.Finalizer != nil {
				branch.Metadata.Finalizer.Release(event.StatusDropped)
			}
			return err
		}
	}
	return nil
}
