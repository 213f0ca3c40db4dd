package buffer

import "flowcore/pkg/event"

// encodeEvent/decodeEvent delegate to the shared Event JSON codec in
// pkg/event so the disk buffer's on-disk record format and the dead letter
// queue's stored entries use one serialization, not two independently
// maintained DTOs.

func encodeEvent(e event.Event) ([]byte, error) {
	return event.EncodeJSON(e)
}

func decodeEvent(b []byte) (event.Event, error) {
	return event.DecodeJSON(b)
}
