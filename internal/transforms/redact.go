package transforms

import (
	"flowcore/internal/topology"
	"flowcore/pkg/event"
	"flowcore/pkg/security"
)

// RedactConfig configures Redact.
type RedactConfig struct {
	RedactEmails      bool
	RedactIPs         bool
	RedactCreditCards bool
	CustomPatterns    map[string]string
}

// Redact scrubs sensitive substrings (passwords, bearer tokens, API keys,
// credit card numbers, and optionally emails/IPs) out of every string-kind
// field of a log event, in place.
//
// Grounded on pkg/security/sanitizer.go's Sanitizer, generalized from its
// original call sites (sanitizing a single message or URL string before
// logging it) to walking every leaf field of a structured log event, since
// the topology's events carry arbitrary user-defined fields rather than
// one fixed message string.
type Redact struct {
	san *security.Sanitizer
}

// NewRedact returns a Redact transform backed by a Sanitizer configured per
// cfg.
func NewRedact(cfg RedactConfig) *Redact {
	return &Redact{san: security.NewSanitizer(security.SanitizerConfig{
		RedactEmails:      cfg.RedactEmails,
		RedactIPs:         cfg.RedactIPs,
		RedactCreditCards: cfg.RedactCreditCards,
		CustomPatterns:    cfg.CustomPatterns,
	})}
}

func (r *Redact) Transform(e event.Event, out *topology.OutputBuffer) {
	log := logOf(e)
	if log == nil {
		out.Emit(e)
		return
	}

	var changed bool
	for _, fp := range log.AllFields() {
		b, ok := fp.Value.AsBytes()
		if !ok {
			continue
		}
		original := string(b)
		sanitized := r.san.Sanitize(original)
		if sanitized == original {
			continue
		}
		p, err := event.ParsePath(fp.Path)
		if err != nil {
			continue
		}
		log.Insert(p, event.String(sanitized))
		changed = true
	}
	if changed {
		e.InvalidateSize()
	}
	out.Emit(e)
}

var _ topology.FunctionTransform = (*Redact)(nil)

// logOf returns the structured-field payload of a log or trace event (both
// are *event.Log under the hood); metric events have no string fields to
// redact.
func logOf(e event.Event) *event.Log {
	switch e.Type {
	case event.TypeLog:
		return e.Log
	case event.TypeTrace:
		return e.Trace
	default:
		return nil
	}
}
