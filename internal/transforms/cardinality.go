package transforms

import (
	"github.com/sirupsen/logrus"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
	"flowcore/pkg/normalize"
)

// CardinalityLimitConfig configures CardinalityLimit.
type CardinalityLimitConfig struct {
	Probabilistic bool
	MaxValues     int
	DropEvent     bool // false = DropTag (default)
	BloomBits     uint64
	BloomHashes   int
	Logger        *logrus.Logger
}

// CardinalityLimit caps the number of distinct values observed per tag key
// within a metric series, per SPEC_FULL.md §4.5.3. Log and trace events
// pass through untouched.
//
// Grounded on pkg/normalize.CardinalityLimiter, which already implements
// both the exact and probabilistic accounting modes; this type is the
// FunctionTransform adapter and the one place a series/tag hitting its
// limit gets logged.
type CardinalityLimit struct {
	limiter *normalize.CardinalityLimiter
	logger  *logrus.Logger
}

func NewCardinalityLimit(cfg CardinalityLimitConfig) *CardinalityLimit {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	mode := normalize.Exact
	if cfg.Probabilistic {
		mode = normalize.Probabilistic
	}
	action := normalize.DropTag
	if cfg.DropEvent {
		action = normalize.DropEvent
	}

	cl := &CardinalityLimit{logger: logger}
	cl.limiter = normalize.NewCardinalityLimiter(normalize.CardinalityConfig{
		Mode:        mode,
		MaxValues:   cfg.MaxValues,
		Action:      action,
		BloomBits:   cfg.BloomBits,
		BloomHashes: cfg.BloomHashes,
	}, cl.onHit)
	return cl
}

func (c *CardinalityLimit) onHit(seriesKey, tagKey string) {
	c.logger.WithFields(logrus.Fields{
		"series": seriesKey,
		"tag":    tagKey,
	}).Warn("transforms: tag cardinality limit reached")
}

func (c *CardinalityLimit) Transform(e event.Event, out *topology.OutputBuffer) {
	if e.Type != event.TypeMetric {
		out.Emit(e)
		return
	}
	if !c.limiter.Apply(e.Metric) {
		if e.Metadata.Finalizer != nil {
			e.Metadata.Finalizer.Release(event.StatusRejected)
		}
		return
	}
	e.InvalidateSize()
	out.Emit(e)
}

var _ topology.FunctionTransform = (*CardinalityLimit)(nil)
