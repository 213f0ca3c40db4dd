package sinkpipeline

import (
	"bytes"

	"flowcore/pkg/codec"
	"flowcore/pkg/compression"
	"flowcore/pkg/errors"
)

// JoinMode selects how per-event encoded frames are concatenated into one
// batch payload, per SPEC_FULL.md §4.6.3: line-oriented serializers default
// to NewlineDelimited framing, structured ones to Bytes (no delimiter).
type JoinMode int

const (
	JoinNewline JoinMode = iota
	JoinConcat
)

// Encode renders every event in the batch with serializer and joins the
// frames per join, classifying any per-event failure as a KindEncode error
// (the whole batch is dropped on an encode failure, per §4.7.3 — a
// partially-encoded batch is not a meaningful partial delivery).
func Encode(batch *Batch, serializer codec.Serializer, join JoinMode) ([]byte, error) {
	var buf bytes.Buffer
	for i, e := range batch.Events {
		frame, err := serializer.Serialize(e)
		if err != nil {
			return nil, errors.Classify(errors.KindEncode, batch.Key, "encode", err)
		}
		if join == JoinNewline && i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(frame)
	}
	return buf.Bytes(), nil
}

// Compress runs the batch payload through the configured algorithm, a
// no-op when algorithm is AlgorithmNone or the payload is under the
// compressor's configured MinBytes threshold.
func Compress(payload []byte, algorithm compression.Algorithm, compressor *compression.Compressor) (*compression.CompressionResult, error) {
	if algorithm == "" || algorithm == compression.AlgorithmNone || compressor == nil {
		return &compression.CompressionResult{Data: payload, Algorithm: compression.AlgorithmNone, OriginalSize: len(payload), CompressedSize: len(payload), Ratio: 1}, nil
	}
	return compressor.Compress(payload, algorithm, "")
}
