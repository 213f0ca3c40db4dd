package sinkpipeline

import "flowcore/pkg/event"

// RequestMetadata carries the accounting a sink's transport needs to report
// telemetry and to size outbound requests, per SPEC_FULL.md §4.7.4.
type RequestMetadata struct {
	EventCount int
	BytesIn    int // pre-encode estimated size (sum of Event.AllocatedBytes)
	BytesOut   int // post-compression wire size
}

// Request is the transport-agnostic outcome of partition->batch->encode->
// compress, handed to a sink's Transport func. Key is the partition key
// (Kafka topic, S3 prefix, HTTP path segment, ...); sinks interpret it.
type Request struct {
	Key       string
	Body      []byte
	Encoding  string // Content-Encoding-shaped hint ("gzip", "zstd", "" for none)
	Metadata  RequestMetadata
	Finalizer *event.Finalizer
	// Events holds the original, pre-encode events this request was built
	// from, kept around only so a terminally-failed dispatch can hand them
	// to a dead-letter queue; Transport implementations should use Body,
	// not Events, as the wire payload.
	Events []event.Event
	// members holds every original per-event finalizer folded into
	// Finalizer, released alongside it once the transport call resolves.
	members []*event.Finalizer
}

func buildRequest(batch *Batch, body []byte, encoding string, bytesOut int) Request {
	return Request{
		Key:      batch.Key,
		Body:     body,
		Encoding: encoding,
		Metadata: RequestMetadata{
			EventCount: len(batch.Events),
			BytesIn:    batch.Bytes,
			BytesOut:   bytesOut,
		},
		Finalizer: batch.Finalizer,
		Events:    batch.Events,
		members:   batch.MemberFinalizers,
	}
}

// Resolve releases every finalizer folded into the request with the given
// terminal status, per §4.7.6: Delivered on success, Rejected on
// non-retriable failure, Errored on retry-exhausted failure.
func (r Request) Resolve(status event.Status) {
	for _, f := range r.members {
		f.Release(status)
	}
	if r.Finalizer != nil {
		r.Finalizer.Release(status)
	}
}
