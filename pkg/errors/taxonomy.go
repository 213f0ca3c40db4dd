package errors

import (
	"errors"

	"flowcore/pkg/event"
)

// Kind identifies one row of the error taxonomy in SPEC_FULL.md §7: each
// pipeline stage classifies its failures into one of these, which in turn
// decides the local-recovery vs. finalizer-escalation path.
//
// Grounded on AppError's existing Code/Severity fields (this file), reworked
// into Go 1.13+ sentinel-wrappable errors per SPEC_FULL.md §7's "wrapped
// with fmt.Errorf(...: %w) / errors.Is/As" expansion, instead of adding yet
// more string codes to the catch-all struct.
type Kind int

const (
	KindParse Kind = iota
	KindEncode
	KindTemplateRender
	KindTransportTimeout
	KindTransportRefused
	KindTransportTransient
	KindBufferFull
	KindBufferIO
	KindBufferCorruption
	KindConfigValidation
	KindHealthcheckFail
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse_error"
	case KindEncode:
		return "encode_error"
	case KindTemplateRender:
		return "template_render_error"
	case KindTransportTimeout:
		return "transport_timeout"
	case KindTransportRefused:
		return "transport_refused"
	case KindTransportTransient:
		return "transport_transient"
	case KindBufferFull:
		return "buffer_full"
	case KindBufferIO:
		return "buffer_io"
	case KindBufferCorruption:
		return "buffer_corruption"
	case KindConfigValidation:
		return "config_validation"
	case KindHealthcheckFail:
		return "healthcheck_fail"
	default:
		return "unknown"
	}
}

// Sentinels, one per row of the §7 taxonomy table, usable with errors.Is
// after a stage wraps them: fmt.Errorf("posting batch: %w", errors.ErrTransportTimeout).
var (
	ErrParse              = errors.New("parse_error")
	ErrEncode             = errors.New("encode_error")
	ErrTemplateRender     = errors.New("template_render_error")
	ErrTransportTimeout   = errors.New("transport_timeout")
	ErrTransportRefused   = errors.New("transport_refused")
	ErrTransportTransient = errors.New("transport_transient")
	ErrBufferFull         = errors.New("buffer_full")
	ErrBufferIO           = errors.New("buffer_io")
	ErrBufferCorruption   = errors.New("buffer_corruption")
	ErrConfigValidation   = errors.New("config_validation")
	ErrHealthcheckFail    = errors.New("healthcheck_fail")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindParse:
		return ErrParse
	case KindEncode:
		return ErrEncode
	case KindTemplateRender:
		return ErrTemplateRender
	case KindTransportTimeout:
		return ErrTransportTimeout
	case KindTransportRefused:
		return ErrTransportRefused
	case KindTransportTransient:
		return ErrTransportTransient
	case KindBufferFull:
		return ErrBufferFull
	case KindBufferIO:
		return ErrBufferIO
	case KindBufferCorruption:
		return ErrBufferCorruption
	case KindConfigValidation:
		return ErrConfigValidation
	case KindHealthcheckFail:
		return ErrHealthcheckFail
	default:
		return errors.New("unknown_error")
	}
}

// Classified wraps a stage-local error with its taxonomy Kind, the
// component that observed it, and an optional cause, while staying
// errors.Is-compatible with both the Kind sentinel and the original cause.
type Classified struct {
	Kind      Kind
	Component string
	Stage     string
	Cause     error
}

func Classify(kind Kind, component, stage string, cause error) *Classified {
	return &Classified{Kind: kind, Component: component, Stage: stage, Cause: cause}
}

func (e *Classified) Error() string {
	if e.Cause == nil {
		return e.Component + "/" + e.Stage + ": " + e.Kind.String()
	}
	return e.Component + "/" + e.Stage + ": " + e.Kind.String() + ": " + e.Cause.Error()
}

// Unwrap lets errors.Is(err, ErrTransportTimeout) and errors.Is(err, the
// original cause) both succeed: the sentinel takes priority since most
// callers classify by Kind, and errors.As still reaches Cause through a
// second Unwrap hop via causeWrapper.
func (e *Classified) Unwrap() error {
	return &causeWrapper{sentinel: sentinelFor(e.Kind), cause: e.Cause}
}

type causeWrapper struct {
	sentinel error
	cause    error
}

func (w *causeWrapper) Error() string {
	if w.cause == nil {
		return w.sentinel.Error()
	}
	return w.sentinel.Error() + ": " + w.cause.Error()
}

func (w *causeWrapper) Is(target error) bool { return target == w.sentinel }
func (w *causeWrapper) Unwrap() error        { return w.cause }

// Retryable reports whether the taxonomy classifies this kind as locally
// recoverable via retry (TransportTimeout, TransportTransient) rather than
// an immediate finalizer escalation.
func (k Kind) Retryable() bool {
	return k == KindTransportTimeout || k == KindTransportTransient
}

// FinalStatus maps a taxonomy Kind to the finalizer status an event should
// receive when this error is the terminal outcome for it, per the
// "Escalation" column of SPEC_FULL.md §7's table.
func (k Kind) FinalStatus() event.Status {
	switch k {
	case KindParse, KindEncode, KindTransportRefused:
		return event.StatusRejected
	case KindTemplateRender, KindTransportTimeout, KindTransportTransient:
		return event.StatusErrored
	case KindBufferFull:
		return event.StatusDropped
	default:
		return event.StatusErrored
	}
}
