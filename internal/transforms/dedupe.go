// Package transforms implements the named FunctionTransform kinds
// internal/config wires by "type" beyond plain passthrough: deduplication,
// timestamp clamping, sensitive-field redaction, and the metric normalizer
// plus cardinality limiter described in SPEC_FULL.md §4.5.
package transforms

import (
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/internal/topology"
	"flowcore/pkg/deduplication"
	"flowcore/pkg/event"
)

// DedupeConfig configures Dedupe.
type DedupeConfig struct {
	MaxCacheSize     int
	TTLSeconds       int
	IncludeTimestamp bool
	IncludeSourceID  bool
	Logger           *logrus.Logger
}

// Dedupe drops log events whose (source, message) pair was already seen
// within the configured TTL, per the teacher's "drop duplicate log lines"
// concern. Metric and trace events pass through untouched: the
// deduplication manager's hash is defined over a source id plus a message
// string, which only a Log event carries.
//
// Grounded on pkg/deduplication.DeduplicationManager, whose IsDuplicate
// already does exactly this LRU+TTL membership check; this type is the
// thin FunctionTransform adapter wiring it into the topology instead of
// the dispatcher it was originally called from.
type Dedupe struct {
	mgr *deduplication.DeduplicationManager
}

// NewDedupe returns a Dedupe transform backed by a fresh deduplication
// manager. Its background cleanup loop is started immediately: the manager
// has no Build-time hook into the topology's component lifecycle, and a
// bounded LRU+TTL cache left uncleaned merely grows slower, not unboundedly,
// so starting it eagerly here is safe.
func NewDedupe(cfg DedupeConfig) *Dedupe {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	mgr := deduplication.NewDeduplicationManager(deduplication.Config{
		MaxCacheSize:     cfg.MaxCacheSize,
		TTL:              secondsOrDefault(cfg.TTLSeconds),
		IncludeTimestamp: cfg.IncludeTimestamp,
		IncludeSourceID:  cfg.IncludeSourceID,
	}, logger)
	_ = mgr.Start()
	return &Dedupe{mgr: mgr}
}

func (d *Dedupe) Transform(e event.Event, out *topology.OutputBuffer) {
	if e.Type != event.TypeLog {
		out.Emit(e)
		return
	}

	message, _ := e.Log.Get(event.PathMessage)
	sourceID := e.Metadata.Source

	if d.mgr.IsDuplicate(sourceID, message.Coerce(), e.Log.Timestamp()) {
		if e.Metadata.Finalizer != nil {
			e.Metadata.Finalizer.Release(event.StatusDropped)
		}
		return
	}
	out.Emit(e)
}

var _ topology.FunctionTransform = (*Dedupe)(nil)

func secondsOrDefault(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}
