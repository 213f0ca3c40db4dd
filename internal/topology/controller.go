package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/pkg/buffer"
	"flowcore/pkg/event"
)

// Controller owns a running topology: the wired buffers between components,
// the built component instances, and the supervisor goroutine per
// component. It implements §4.4.4 (dependency-ordered start: sinks, then
// transforms, then sources), §4.4.5 (diff-based hot reload), and §4.4.6
// (graceful shutdown with a grace period).
//
// Grounded on internal/dispatcher/dispatcher.go's Start/Stop/drainQueue
// shape, generalized from one fixed pipeline to an arbitrary graph.
type Controller struct {
	logger    *logrus.Logger
	sup       *supervisor
	graph     *Graph
	buffers   map[string]buffer.Buffer
	outputs   map[string]Output
	instances map[string]Instance

	bp *backpressureMonitor
}

// NewController builds, wires, and returns a Controller for graph but does
// not start any component task; call Start for that.
func NewController(g *Graph, logger *logrus.Logger) (*Controller, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Controller{
		logger:    logger,
		sup:       newSupervisor(logger),
		graph:     g,
		buffers:   make(map[string]buffer.Buffer),
		outputs:   make(map[string]Output),
		instances: make(map[string]Instance),
	}
	if err := c.wire(); err != nil {
		return nil, err
	}
	c.bp = newBackpressureMonitor(logger, nil, c.bufferStats)
	return c, nil
}

// SetResourceSampler configures the source of real CPU/IO utilization for
// the graph-wide backpressure monitor (see backpressure.go). Call before
// Start; a nil sampler (the default) leaves backpressure monitoring
// disabled.
func (c *Controller) SetResourceSampler(sampler ResourceSampler) {
	c.bp.sampler = sampler
}

// bufferStats snapshots every wired buffer's current occupancy, for the
// backpressure monitor.
func (c *Controller) bufferStats() map[string]bufferStats {
	out := make(map[string]bufferStats, len(c.buffers))
	for id, b := range c.buffers {
		s := b.Stats()
		out[id] = bufferStats{events: s.Events, capacity: s.Capacity}
	}
	return out
}

// BackpressureStatus reports the current graph-wide backpressure level and
// throttle factor, for the admin /topology surface.
func (c *Controller) BackpressureStatus() (level string, factor float64) {
	return c.bp.Status()
}

// wire constructs one inbound buffer per non-source node and, once every
// buffer exists, one fanout Output per node feeding its downstream readers.
func (c *Controller) wire() error {
	for i := range c.graph.Nodes {
		n := &c.graph.Nodes[i]
		if n.Kind == KindSource {
			continue
		}
		b, err := newEdgeBuffer(n)
		if err != nil {
			return fmt.Errorf("topology: wiring %s: %w", n.Key.ID, err)
		}
		c.buffers[n.Key.ID] = b
	}

	for i := range c.graph.Nodes {
		n := &c.graph.Nodes[i]
		var downstream []Output
		for j := range c.graph.Nodes {
			d := &c.graph.Nodes[j]
			for _, in := range d.Inputs {
				if parseInputRef(in).id == n.Key.ID {
					downstream = append(downstream, bufferOutput{buf: c.buffers[d.Key.ID]})
				}
			}
		}
		c.outputs[n.Key.ID] = newFanout(downstream...)
	}
	return nil
}

func newEdgeBuffer(n *Node) (buffer.Buffer, error) {
	if n.Buffer.Disk {
		cfg := buffer.DiskConfig{
			Dir:          n.Buffer.DiskDir,
			MaxSizeBytes: n.Buffer.MaxSizeBytes,
			Policy:       n.Buffer.Policy,
			DirPerm:      n.Buffer.DirPerm,
			FilePerm:     n.Buffer.FilePerm,
		}
		return buffer.OpenDiskBuffer(cfg)
	}
	maxEvents := n.Buffer.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return buffer.NewMemoryBuffer(buffer.MemoryConfig{MaxEvents: maxEvents, Policy: n.Buffer.Policy}), nil
}

// Start builds every node's component instance and spawns its task, sinks
// first, then transforms, then sources, so a source never writes into a
// buffer before its downstream reader exists.
func (c *Controller) Start(ctx context.Context) error {
	for _, kind := range []Kind{KindSink, KindTransform, KindSource} {
		for i := range c.graph.Nodes {
			n := &c.graph.Nodes[i]
			if n.Kind != kind {
				continue
			}
			if err := c.startNode(ctx, n); err != nil {
				return err
			}
		}
	}
	c.bp.start(ctx)
	return nil
}

func (c *Controller) startNode(ctx context.Context, n *Node) error {
	instance, err := n.Build()
	if err != nil {
		return fmt.Errorf("topology: building %s: %w", n.Key.ID, err)
	}
	c.instances[n.Key.ID] = instance

	switch n.Kind {
	case KindSink:
		sink, ok := instance.(Sink)
		if !ok {
			return fmt.Errorf("topology: %s: Build did not return a Sink", n.Key.ID)
		}
		in := bufferInput{buf: c.buffers[n.Key.ID]}
		return c.sup.spawn(ctx, n.Key, func(taskCtx context.Context) error {
			return sink.Run(taskCtx, in)
		})

	case KindSource:
		src, ok := instance.(Source)
		if !ok {
			return fmt.Errorf("topology: %s: Build did not return a Source", n.Key.ID)
		}
		out := c.outputs[n.Key.ID]
		return c.sup.spawn(ctx, n.Key, func(taskCtx context.Context) error {
			return src.Run(taskCtx, out)
		})

	case KindTransform:
		in := bufferInput{buf: c.buffers[n.Key.ID]}
		out := c.outputs[n.Key.ID]
		if ft, ok := instance.(FunctionTransform); ok {
			return c.sup.spawn(ctx, n.Key, func(taskCtx context.Context) error {
				return runFunctionTransform(taskCtx, ft, in, out)
			})
		}
		if tt, ok := instance.(TaskTransform); ok {
			return c.sup.spawn(ctx, n.Key, func(taskCtx context.Context) error {
				return tt.Run(taskCtx, in, out)
			})
		}
		return fmt.Errorf("topology: %s: Build returned neither a FunctionTransform nor a TaskTransform", n.Key.ID)
	}
	return fmt.Errorf("topology: %s: unknown kind %v", n.Key.ID, n.Kind)
}

// runFunctionTransform drives an inline per-event transform: each input
// event's finalizer is forked once per emitted output (the last output
// reuses the original reference rather than forking-then-releasing it), and
// an input that yields zero outputs is explicitly released as Dropped so no
// finalizer is ever silently abandoned.
func runFunctionTransform(ctx context.Context, ft FunctionTransform, in Input, out Output) error {
	for {
		e, err := in.Receive(ctx)
		if err != nil {
			return err
		}
		var buf OutputBuffer
		ft.Transform(e, &buf)

		parent := e.Metadata.Finalizer
		n := len(buf.Events)
		if n == 0 {
			if parent != nil {
				parent.Release(event.StatusDropped)
			}
			continue
		}
		for i, oe := range buf.Events {
			if parent != nil {
				if i == n-1 {
					oe.Metadata.AttachFinalizer(parent)
				} else {
					oe.Metadata.AttachFinalizer(parent.Fork(nil))
				}
			}
			if sendErr := out.Send(ctx, oe); sendErr != nil && oe.Metadata.Finalizer != nil {
				oe.Metadata.Finalizer.Release(event.StatusDropped)
			}
		}
	}
}

// Reload diffs next against the running graph per §4.4.5: components
// removed from next are stopped and their buffers closed; components new to
// next are wired and started; components present in both are left running
// untouched (a changed node must be represented as a remove+add pair by the
// caller, since Node carries no identity-preserving revision number).
func (c *Controller) Reload(ctx context.Context, next *Graph, grace time.Duration) error {
	oldIDs := make(map[string]bool, len(c.graph.Nodes))
	for i := range c.graph.Nodes {
		oldIDs[c.graph.Nodes[i].Key.ID] = true
	}
	newIDs := make(map[string]bool, len(next.Nodes))
	for i := range next.Nodes {
		newIDs[next.Nodes[i].Key.ID] = true
	}

	for i := range c.graph.Nodes {
		n := &c.graph.Nodes[i]
		if newIDs[n.Key.ID] {
			continue
		}
		if err := c.sup.stop(n.Key, grace); err != nil {
			c.logger.WithError(err).WithField("component", n.Key.ID).Warn("topology: reload stop did not complete in grace period")
		}
		if b, ok := c.buffers[n.Key.ID]; ok {
			b.Close()
			delete(c.buffers, n.Key.ID)
		}
		delete(c.outputs, n.Key.ID)
		delete(c.instances, n.Key.ID)
	}

	c.graph = next
	if err := c.wire(); err != nil {
		return err
	}

	for i := range next.Nodes {
		n := &next.Nodes[i]
		if oldIDs[n.Key.ID] {
			continue
		}
		if err := c.startNode(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown cancels every running component and waits up to grace for all of
// them to exit, then closes every wired buffer. Buffers backed by disk
// retain their unread contents across the next Start.
func (c *Controller) Shutdown(grace time.Duration) error {
	c.bp.stop()
	errs := c.sup.stopAll(grace)
	for _, b := range c.buffers {
		b.Close()
	}
	if len(errs) > 0 {
		return fmt.Errorf("topology: %d component(s) did not stop cleanly: %v", len(errs), errs[0])
	}
	return nil
}

// Healthcheck probes every running component that implements Healthcheck,
// collecting failures rather than stopping at the first one. Components
// with no Healthcheck method (most sources and transforms) are omitted.
func (c *Controller) Healthcheck(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for id, inst := range c.instances {
		if hc, ok := inst.(Healthcheck); ok {
			results[id] = hc.Healthcheck(ctx)
		}
	}
	return results
}

// ComponentStatus is a point-in-time snapshot of one running component, for
// the admin topology surface (§6.6).
type ComponentStatus struct {
	ID       string
	Kind     Kind
	Inputs   []string
	State    string
	LastErr  error
}

// Snapshot reports every component's current lifecycle state, in graph
// declaration order.
func (c *Controller) Snapshot() []ComponentStatus {
	out := make([]ComponentStatus, 0, len(c.graph.Nodes))
	for i := range c.graph.Nodes {
		n := &c.graph.Nodes[i]
		state, lastErr := c.sup.status(n.Key)
		out = append(out, ComponentStatus{
			ID:      n.Key.ID,
			Kind:    n.Kind,
			Inputs:  n.Inputs,
			State:   string(state),
			LastErr: lastErr,
		})
	}
	return out
}
