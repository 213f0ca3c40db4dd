package transforms

import (
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/internal/topology"
	"flowcore/pkg/event"
)

// TimestampLimitAction mirrors validation.TimestampValidator's
// invalid_action modes.
type TimestampLimitAction int

const (
	// ActionClamp rewrites an out-of-window timestamp to now.
	ActionClamp TimestampLimitAction = iota
	// ActionReject drops the event entirely.
	ActionReject
	// ActionWarn logs the violation but passes the event through
	// unmodified.
	ActionWarn
)

// TimestampLimitConfig configures TimestampLimit.
type TimestampLimitConfig struct {
	MaxPastAge   time.Duration
	MaxFutureAge time.Duration
	Action       TimestampLimitAction
	Logger       *logrus.Logger
}

// TimestampLimit rejects or clamps log timestamps that drift too far from
// wall-clock time, guarding downstream time-series storage from a
// misconfigured or clock-skewed source.
//
// Grounded on pkg/validation/timestamp_validator.go's window check and
// clamp/reject/warn action set, reimplemented directly against event.Log
// (SetTimestamp/Timestamp) instead of that file's types.LogEntry+DLQ
// coupling: the DLQ's per-entry audit trail has no equivalent in the new
// finalizer-based model, where a rejected event already reports
// event.StatusRejected to its source.
type TimestampLimit struct {
	cfg    TimestampLimitConfig
	logger *logrus.Logger
}

// NewTimestampLimit returns a TimestampLimit transform. Zero durations
// disable that side of the window (no past/future bound).
func NewTimestampLimit(cfg TimestampLimitConfig) *TimestampLimit {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TimestampLimit{cfg: cfg, logger: logger}
}

func (t *TimestampLimit) Transform(e event.Event, out *topology.OutputBuffer) {
	if e.Type != event.TypeLog {
		out.Emit(e)
		return
	}

	ts := e.Log.Timestamp()
	if ts.IsZero() {
		out.Emit(e)
		return
	}

	now := time.Now()
	var violated bool
	if t.cfg.MaxFutureAge > 0 && ts.After(now.Add(t.cfg.MaxFutureAge)) {
		violated = true
	}
	if t.cfg.MaxPastAge > 0 && ts.Before(now.Add(-t.cfg.MaxPastAge)) {
		violated = true
	}
	if !violated {
		out.Emit(e)
		return
	}

	switch t.cfg.Action {
	case ActionReject:
		t.logger.WithField("timestamp", ts).Warn("transforms: timestamp rejected outside window")
		if e.Metadata.Finalizer != nil {
			e.Metadata.Finalizer.Release(event.StatusRejected)
		}
	case ActionWarn:
		t.logger.WithField("timestamp", ts).Warn("transforms: timestamp outside window, passing through")
		out.Emit(e)
	default: // ActionClamp
		t.logger.WithField("timestamp", ts).Debug("transforms: timestamp clamped to current time")
		e.Log.SetTimestamp(now)
		e.InvalidateSize()
		out.Emit(e)
	}
}

var _ topology.FunctionTransform = (*TimestampLimit)(nil)
