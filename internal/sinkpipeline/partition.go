// Package sinkpipeline implements the generic sink request pipeline of
// SPEC_FULL.md §4.7: partition -> batch -> encode -> compress -> request
// builder -> retrying/rate-limited/concurrency-limited dispatch, with
// finalizer propagation back to the source.
//
// Grounded on three teacher packages generalized from per-sink ad hoc code
// into one reusable pipeline: pkg/ratelimit (adaptive token bucket),
// pkg/circuit (breaker gating dispatch), and
// internal/dispatcher/retry_manager.go (bounded concurrent retry), per
// SPEC_FULL.md §4.7's expansion note. Concrete sinks (internal/sinks)
// parameterize one Pipeline each with their own Partitioner, Serializer,
// and Transport.
package sinkpipeline

import (
	"fmt"

	"flowcore/pkg/event"
)

// Partitioner is a pure function from event to routing key (e.g. a
// template-rendered S3 prefix, Kafka topic, HTTP URL). Events with
// different keys land in different batch slots.
type Partitioner func(e event.Event) (string, error)

// StaticPartitioner always returns the same key — the common case for
// sinks with a single destination (one Kafka topic, one HTTP endpoint).
func StaticPartitioner(key string) Partitioner {
	return func(event.Event) (string, error) { return key, nil }
}

// TemplatePartitioner renders key from a small `{field}`-substitution
// template against the event's log fields, the same shape as the teacher's
// S3/Loki key templating (e.g. "logs/{host}/{source_type}"). A missing
// field renders as empty string, not an error — only a template referencing
// no log at all (a Metric/Trace passed to a log-shaped template) fails per
// SPEC_FULL.md §4.7.1's "key rendering failure drops the event".
func TemplatePartitioner(template string) Partitioner {
	return func(e event.Event) (string, error) {
		var l *event.Log
		switch e.Type {
		case event.TypeLog:
			l = e.Log
		case event.TypeTrace:
			l = e.Trace
		default:
			return "", fmt.Errorf("sinkpipeline: template partitioner requires a log-shaped event, got %s", e.Type)
		}
		return renderTemplate(template, l), nil
	}
}

func renderTemplate(template string, l *event.Log) string {
	out := make([]byte, 0, len(template))
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			end := i + 1
			for end < len(template) && template[end] != '}' {
				end++
			}
			if end < len(template) {
				field := template[i+1 : end]
				if p, err := event.ParsePath(field); err == nil {
					if v, ok := l.Get(p); ok {
						out = append(out, v.Coerce()...)
					}
				}
				i = end + 1
				continue
			}
		}
		out = append(out, template[i])
		i++
	}
	return string(out)
}
