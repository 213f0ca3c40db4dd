package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// This file provides a JSON encoding for the full polymorphic Event union,
// independent of the pluggable wire codecs in pkg/codec. It exists so any
// component that must persist or log a complete Event (the durable buffer,
// the dead letter queue) shares one serialization instead of each
// reinventing a DTO, grounded on the teacher's BufferEntry JSON wrapper
// (pkg/buffer/disk_buffer.go) generalized from a single LogEntry shape to
// the polymorphic event model.

type valueDTO struct {
	K int              `json:"k"`
	B []byte           `json:"b,omitempty"`
	I int64            `json:"i,omitempty"`
	F float64          `json:"f,omitempty"`
	L bool             `json:"l,omitempty"`
	T time.Time        `json:"t,omitempty"`
	R string           `json:"r,omitempty"`
	A []valueDTO       `json:"a,omitempty"`
	O []objectFieldDTO `json:"o,omitempty"`
}

type objectFieldDTO struct {
	K string   `json:"k"`
	V valueDTO `json:"v"`
}

func valueToDTO(v Value) valueDTO {
	d := valueDTO{K: int(v.Kind())}
	switch v.Kind() {
	case KindBytes:
		d.B, _ = v.AsBytes()
	case KindInteger:
		d.I, _ = v.AsInteger()
	case KindFloat:
		d.F, _ = v.AsFloat()
	case KindBoolean:
		d.L, _ = v.AsBoolean()
	case KindTimestamp:
		d.T, _ = v.AsTimestamp()
	case KindRegex:
		d.R = v.Coerce()
	case KindArray:
		arr, _ := v.AsArray()
		d.A = make([]valueDTO, len(arr))
		for i, e := range arr {
			d.A[i] = valueToDTO(e)
		}
	case KindObject:
		obj, _ := v.AsObject()
		for _, k := range obj.Keys() {
			val, _ := obj.Get(k)
			d.O = append(d.O, objectFieldDTO{K: k, V: valueToDTO(val)})
		}
	}
	return d
}

func dtoToValue(d valueDTO) Value {
	switch Kind(d.K) {
	case KindNull:
		return Null
	case KindBytes:
		return Bytes(d.B)
	case KindInteger:
		return Integer(d.I)
	case KindFloat:
		return Float(d.F)
	case KindBoolean:
		return Boolean(d.L)
	case KindTimestamp:
		return Timestamp(d.T)
	case KindRegex:
		return Regex(d.R)
	case KindArray:
		vs := make([]Value, len(d.A))
		for i, e := range d.A {
			vs[i] = dtoToValue(e)
		}
		return Array(vs)
	case KindObject:
		obj := NewObject()
		for _, f := range d.O {
			obj.Set(f.K, dtoToValue(f.V))
		}
		return FromObject(obj)
	default:
		return Null
	}
}

type logDTO struct {
	Namespace int              `json:"ns"`
	Fields    []objectFieldDTO `json:"fields"`
}

func logToDTO(l *Log) logDTO {
	d := logDTO{Namespace: int(l.Namespace())}
	for _, k := range l.Keys() {
		v, _ := l.Get(MustParsePath(jsonKeyEscape(k)))
		d.Fields = append(d.Fields, objectFieldDTO{K: k, V: valueToDTO(v)})
	}
	return d
}

func jsonKeyEscape(k string) string {
	needsEscape := false
	for _, r := range k {
		if r == '.' || r == '[' || r == ']' || r == '\\' {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return k
	}
	out := make([]byte, 0, len(k)+2)
	for _, r := range k {
		if r == '.' || r == '[' || r == ']' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, string(r)...)
	}
	return string(out)
}

func dtoToLog(d logDTO) *Log {
	l := NewLog(SchemaNamespace(d.Namespace))
	for _, f := range d.Fields {
		l.Insert(MustParsePath(jsonKeyEscape(f.K)), dtoToValue(f.V))
	}
	return l
}

type tagDTO struct {
	K string `json:"k"`
	V string `json:"v"`
}

type metricValueDTO struct {
	Kind           int       `json:"kind"`
	Counter        float64   `json:"counter,omitempty"`
	Gauge          float64   `json:"gauge,omitempty"`
	Set            []string  `json:"set,omitempty"`
	Samples        []Sample  `json:"samples,omitempty"`
	Statistic      string    `json:"statistic,omitempty"`
	Buckets        []Bucket  `json:"buckets,omitempty"`
	HistogramSum   float64   `json:"histogram_sum,omitempty"`
	HistogramCount uint64    `json:"histogram_count,omitempty"`
	Quantiles      []float64 `json:"quantiles,omitempty"`
	SummarySum     float64   `json:"summary_sum,omitempty"`
	SummaryCount   uint64    `json:"summary_count,omitempty"`
}

type metricDTO struct {
	Namespace string         `json:"namespace,omitempty"`
	Name      string         `json:"name"`
	Tags      []tagDTO       `json:"tags,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      int            `json:"kind"`
	Value     metricValueDTO `json:"value"`
}

func metricToDTO(m *Metric) metricDTO {
	d := metricDTO{
		Namespace: m.Namespace,
		Name:      m.Name,
		Timestamp: m.Timestamp,
		Kind:      int(m.Kind),
		Value: metricValueDTO{
			Kind:           int(m.Value.Kind),
			Counter:        m.Value.Counter,
			Gauge:          m.Value.Gauge,
			Samples:        m.Value.Samples,
			Statistic:      m.Value.Statistic,
			Buckets:        m.Value.Buckets,
			HistogramSum:   m.Value.HistogramSum,
			HistogramCount: m.Value.HistogramCount,
			Quantiles:      m.Value.Quantiles,
			SummarySum:     m.Value.SummarySum,
			SummaryCount:   m.Value.SummaryCount,
		},
	}
	for v := range m.Value.Set {
		d.Value.Set = append(d.Value.Set, v)
	}
	for _, t := range m.Tags {
		d.Tags = append(d.Tags, tagDTO{K: t.Key, V: t.Value})
	}
	return d
}

func dtoToMetric(d metricDTO) *Metric {
	m := &Metric{
		Namespace: d.Namespace,
		Name:      d.Name,
		Timestamp: d.Timestamp,
		Kind:      MetricKind(d.Kind),
		Value: MetricValue{
			Kind:           MetricValueKind(d.Value.Kind),
			Counter:        d.Value.Counter,
			Gauge:          d.Value.Gauge,
			Samples:        d.Value.Samples,
			Statistic:      d.Value.Statistic,
			Buckets:        d.Value.Buckets,
			HistogramSum:   d.Value.HistogramSum,
			HistogramCount: d.Value.HistogramCount,
			Quantiles:      d.Value.Quantiles,
			SummarySum:     d.Value.SummarySum,
			SummaryCount:   d.Value.SummaryCount,
		},
	}
	if len(d.Value.Set) > 0 {
		m.Value.Set = make(map[string]struct{}, len(d.Value.Set))
		for _, v := range d.Value.Set {
			m.Value.Set[v] = struct{}{}
		}
	}
	for _, t := range d.Tags {
		m.Tags = append(m.Tags, TagPair{Key: t.K, Value: t.V})
	}
	return m
}

type eventDTO struct {
	Type      int        `json:"type"`
	Log       *logDTO    `json:"log,omitempty"`
	Metric    *metricDTO `json:"metric,omitempty"`
	Trace     *logDTO    `json:"trace,omitempty"`
	Source    string     `json:"source,omitempty"`
	Component string     `json:"component,omitempty"`
}

// EncodeJSON serializes an Event (without its finalizer, which is transient
// process state) to bytes for durable storage or DLQ persistence.
func EncodeJSON(e Event) ([]byte, error) {
	d := eventDTO{Type: int(e.Type), Source: e.Metadata.Source, Component: e.Metadata.Component}
	switch e.Type {
	case TypeLog:
		l := logToDTO(e.Log)
		d.Log = &l
	case TypeMetric:
		m := metricToDTO(e.Metric)
		d.Metric = &m
	case TypeTrace:
		tr := logToDTO(e.Trace)
		d.Trace = &tr
	default:
		return nil, fmt.Errorf("event: unknown event type %v", e.Type)
	}
	return json.Marshal(d)
}

// DecodeJSON reconstructs an Event from bytes written by EncodeJSON. The
// caller is responsible for attaching a fresh finalizer (a record replayed
// from storage has no live producer reference to its original one).
func DecodeJSON(b []byte) (Event, error) {
	var d eventDTO
	if err := json.Unmarshal(b, &d); err != nil {
		return Event{}, fmt.Errorf("event: decode: %w", err)
	}
	var e Event
	e.Type = Type(d.Type)
	e.Metadata.Source = d.Source
	e.Metadata.Component = d.Component
	switch e.Type {
	case TypeLog:
		if d.Log == nil {
			return Event{}, fmt.Errorf("event: log event missing payload")
		}
		e.Log = dtoToLog(*d.Log)
	case TypeMetric:
		if d.Metric == nil {
			return Event{}, fmt.Errorf("event: metric event missing payload")
		}
		e.Metric = dtoToMetric(*d.Metric)
	case TypeTrace:
		if d.Trace == nil {
			return Event{}, fmt.Errorf("event: trace event missing payload")
		}
		e.Trace = dtoToLog(*d.Trace)
	default:
		return Event{}, fmt.Errorf("event: unknown event type %d", d.Type)
	}
	return e, nil
}
