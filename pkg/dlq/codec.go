package dlq

import (
	"encoding/json"
	"fmt"
	"time"

	"flowcore/pkg/event"
)

const timeLayout = time.RFC3339Nano

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// dlqEntryDTO mirrors DLQEntry but carries OriginalEntry as the shared
// Event JSON envelope, since event.Event's Log/Metric payloads hold
// unexported fields that encoding/json cannot see directly.
type dlqEntryDTO struct {
	Timestamp            string            `json:"timestamp"`
	OriginalEntry         json.RawMessage   `json:"original_entry"`
	ErrorMessage          string            `json:"error_message"`
	ErrorType             string            `json:"error_type"`
	FailedSink            string            `json:"failed_sink"`
	RetryCount            int               `json:"retry_count"`
	Context               map[string]string `json:"context,omitempty"`
	StackTrace            string            `json:"stack_trace,omitempty"`
	ReprocessAttempts     int               `json:"reprocess_attempts"`
	LastReprocessAttempt  string            `json:"last_reprocess_attempt,omitempty"`
	NextReprocessTime     string            `json:"next_reprocess_time,omitempty"`
	ReprocessingEnabled   bool              `json:"reprocessing_enabled"`
	EntryID               string            `json:"entry_id"`
}

// MarshalJSON encodes the original event via the shared event.EncodeJSON
// envelope rather than relying on encoding/json to see into its private
// fields.
func (e DLQEntry) MarshalJSON() ([]byte, error) {
	raw, err := event.EncodeJSON(e.OriginalEntry)
	if err != nil {
		return nil, fmt.Errorf("dlq: encode original event: %w", err)
	}
	d := dlqEntryDTO{
		Timestamp:           e.Timestamp.Format(timeLayout),
		OriginalEntry:       raw,
		ErrorMessage:        e.ErrorMessage,
		ErrorType:           e.ErrorType,
		FailedSink:          e.FailedSink,
		RetryCount:          e.RetryCount,
		Context:             e.Context,
		StackTrace:          e.StackTrace,
		ReprocessAttempts:   e.ReprocessAttempts,
		ReprocessingEnabled: e.ReprocessingEnabled,
		EntryID:             e.EntryID,
	}
	if !e.LastReprocessAttempt.IsZero() {
		d.LastReprocessAttempt = e.LastReprocessAttempt.Format(timeLayout)
	}
	if !e.NextReprocessTime.IsZero() {
		d.NextReprocessTime = e.NextReprocessTime.Format(timeLayout)
	}
	return json.Marshal(d)
}

// UnmarshalJSON decodes a record written by MarshalJSON.
func (e *DLQEntry) UnmarshalJSON(b []byte) error {
	var d dlqEntryDTO
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	orig, err := event.DecodeJSON(d.OriginalEntry)
	if err != nil {
		return fmt.Errorf("dlq: decode original event: %w", err)
	}
	e.Timestamp = parseTime(d.Timestamp)
	e.OriginalEntry = orig
	e.ErrorMessage = d.ErrorMessage
	e.ErrorType = d.ErrorType
	e.FailedSink = d.FailedSink
	e.RetryCount = d.RetryCount
	e.Context = d.Context
	e.StackTrace = d.StackTrace
	e.ReprocessAttempts = d.ReprocessAttempts
	e.LastReprocessAttempt = parseTime(d.LastReprocessAttempt)
	e.NextReprocessTime = parseTime(d.NextReprocessTime)
	e.ReprocessingEnabled = d.ReprocessingEnabled
	e.EntryID = d.EntryID
	return nil
}

// entryMessage extracts a short human-readable summary of the original
// event for the plain-text DLQ format.
func entryMessage(e event.Event) string {
	var l *event.Log
	switch e.Type {
	case event.TypeLog:
		l = e.Log
	case event.TypeTrace:
		l = e.Trace
	default:
		if e.Metric != nil {
			return e.Metric.Name
		}
		return ""
	}
	if l == nil {
		return ""
	}
	v, ok := l.Get(event.PathMessage)
	if !ok {
		return ""
	}
	return v.Coerce()
}
