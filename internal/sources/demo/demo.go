// Package demo implements a synthetic log generator source, used for
// exercising a topology without real file or container input — the same
// role the teacher's test doubles play for internal/dispatcher's tests, but
// promoted to a real, configurable source per SPEC_FULL.md's source
// contract so it can also back demo/smoke-test topologies in production
// config.
package demo

import (
	"context"
	"fmt"
	"time"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
)

// Config configures a demo Source.
type Config struct {
	// Interval between emitted events; 0 defaults to 1 second.
	Interval time.Duration
	// Count bounds how many events are emitted before Run returns; 0 means
	// unbounded (runs until ctx is cancelled).
	Count   int
	Message string
}

// Source emits synthetic log events on a timer.
type Source struct {
	cfg Config
}

func New(cfg Config) *Source {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Message == "" {
		cfg.Message = "demo log event"
	}
	return &Source{cfg: cfg}
}

var _ topology.Source = (*Source)(nil)

func (s *Source) Run(ctx context.Context, out topology.Output) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var n int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l := event.NewLog(event.SchemaLegacy)
			l.Insert(event.PathMessage, event.String(fmt.Sprintf("%s %d", s.cfg.Message, n)))
			l.Insert(event.PathSource, event.String("demo"))
			l.Insert(event.MustParsePath("sequence"), event.Integer(int64(n)))
			l.SetTimestamp(time.Now())
			e := event.NewLogEvent(l)
			e.Metadata.Source = "demo"

			if err := out.Send(ctx, e); err != nil {
				return err
			}
			n++
			if s.cfg.Count > 0 && n >= s.cfg.Count {
				return nil
			}
		}
	}
}
