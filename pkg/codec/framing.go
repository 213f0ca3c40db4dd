// Package codec implements the framing and encode/decode layer described in
// SPEC_FULL.md §4.6: byte-stream framing methods and a pluggable codec
// registry mapping frame bytes to/from pkg/event.Event.
//
// Grounded on the teacher's line-oriented parsing (internal/monitors's file
// and docker_json_parser.go readers, which already split a byte stream on
// newlines and decode JSON per line) generalized into named, swappable
// framing and codec strategies.
package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Framer splits a byte stream into discrete frames.
type Framer interface {
	// Frames reads from r, invoking emit once per frame. Frames that
	// exceed a configured max length are discarded; implementations report
	// that via the returned discarded count.
	Frames(r io.Reader, emit func([]byte)) (discarded int, err error)
}

// BytesFramer treats each Read call as one frame, for packet-oriented
// transports (e.g. a single UDP datagram).
type BytesFramer struct {
	MaxLen int
}

func (f BytesFramer) Frames(r io.Reader, emit func([]byte)) (int, error) {
	buf := make([]byte, 65536)
	discarded := 0
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if f.MaxLen > 0 && n > f.MaxLen {
				discarded++
			} else {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				emit(frame)
			}
		}
		if err == io.EOF {
			return discarded, nil
		}
		if err != nil {
			return discarded, err
		}
	}
}

// CharacterDelimitedFramer splits on a single delimiter byte. Frames longer
// than MaxLen (when set) are discarded rather than emitted.
type CharacterDelimitedFramer struct {
	Delimiter byte
	MaxLen    int
}

// NewlineDelimitedFramer is CharacterDelimitedFramer{Delimiter: '\n'}.
func NewlineDelimitedFramer(maxLen int) CharacterDelimitedFramer {
	return CharacterDelimitedFramer{Delimiter: '\n', MaxLen: maxLen}
}

func (f CharacterDelimitedFramer) Frames(r io.Reader, emit func([]byte)) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	discarded := 0
	for {
		line, err := br.ReadBytes(f.Delimiter)
		if len(line) > 0 {
			trimmed := bytes.TrimSuffix(line, []byte{f.Delimiter})
			if f.MaxLen > 0 && len(trimmed) > f.MaxLen {
				discarded++
			} else if len(trimmed) > 0 || err == nil {
				frame := make([]byte, len(trimmed))
				copy(frame, trimmed)
				emit(frame)
			}
		}
		if err == io.EOF {
			return discarded, nil
		}
		if err != nil {
			return discarded, err
		}
	}
}

// LengthDelimitedFramer reads a 32-bit little-endian length prefix followed
// by that many payload bytes.
type LengthDelimitedFramer struct{}

func (LengthDelimitedFramer) Frames(r io.Reader, emit func([]byte)) (int, error) {
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, err
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, err
		}
		emit(payload)
	}
}

// VarintLengthDelimitedFramer reads a protobuf-compatible unsigned varint
// length prefix followed by that many payload bytes.
type VarintLengthDelimitedFramer struct{}

func (VarintLengthDelimitedFramer) Frames(r io.Reader, emit func([]byte)) (int, error) {
	br := bufio.NewReader(r)
	for {
		n, err := binary.ReadUvarint(br)
		if err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, err
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(br, payload); err != nil {
			return 0, err
		}
		emit(payload)
	}
}

// OctetCountingFramer implements the syslog RFC 6587 octet-counting frame:
// an ASCII decimal length, a single space, then that many message bytes.
type OctetCountingFramer struct {
	MaxLen int
}

func (f OctetCountingFramer) Frames(r io.Reader, emit func([]byte)) (int, error) {
	br := bufio.NewReader(r)
	discarded := 0
	for {
		lenStr, err := br.ReadString(' ')
		if err != nil {
			if err == io.EOF {
				return discarded, nil
			}
			return discarded, err
		}
		lenStr = lenStr[:len(lenStr)-1]
		var n int
		if _, scanErr := fmt.Sscanf(lenStr, "%d", &n); scanErr != nil {
			return discarded, fmt.Errorf("octet counting: bad length field %q", lenStr)
		}
		if f.MaxLen > 0 && n > f.MaxLen {
			if _, err := io.CopyN(io.Discard, br, int64(n)); err != nil {
				return discarded, err
			}
			discarded++
			continue
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(br, payload); err != nil {
			return discarded, err
		}
		emit(payload)
	}
}
