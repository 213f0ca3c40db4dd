// Package event defines the core polymorphic event model that flows through
// the pipeline: the recursive Value type, path addressing into Log/Trace
// events, the Log/Metric/Trace variants themselves, and the reference
// counted finalizer used for at-least-once acknowledgement.
package event

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBytes
	KindInteger
	KindFloat
	KindBoolean
	KindTimestamp
	KindRegex
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBytes:
		return "bytes"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindRegex:
		return "regex"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Null is the singleton null value.
var Null = Value{kind: KindNull}

// Value is the recursive sum type carried by every Log/Trace field and by
// metric tag values: Null | Bytes | Integer | Float | Boolean | Timestamp |
// Regex | Array | Object. Only one of the typed fields is meaningful,
// selected by kind.
//
// String content is held as raw bytes: the wire format does not require
// UTF-8, and lossy decoding into a Go string is an opt-in behavior left to
// callers (see Value.Coerce).
type Value struct {
	kind      Kind
	bytes     []byte
	integer   int64
	float     float64
	boolean   bool
	timestamp time.Time
	regex     string
	array     []Value
	object    *Object
}

// Object is an insertion-ordered string -> Value map. Plain Go maps do not
// preserve iteration order, which the Log model's keys()/all_fields()
// contract requires.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty ordered object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Get returns the value stored at key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Set inserts or overwrites key, returning the previous value if any.
// Preserves the original position of key on overwrite; appends on insert.
func (o *Object) Set(key string, v Value) (Value, bool) {
	prev, existed := o.values[key]
	o.values[key] = v
	if !existed {
		o.keys = append(o.keys, key)
	}
	return prev, existed
}

// Delete removes key, returning the previous value if any.
func (o *Object) Delete(key string) (Value, bool) {
	prev, ok := o.values[key]
	if !ok {
		return Value{}, false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return prev, true
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len reports the number of entries.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Rename moves the value at old to new, preserving position. It is
// idempotent (no-op if old is absent). If new already exists and
// noOverwrite is true, it returns an error instead of clobbering it.
func (o *Object) Rename(old, new string, noOverwrite bool) error {
	if o == nil {
		return nil
	}
	v, ok := o.values[old]
	if !ok {
		return nil
	}
	if _, exists := o.values[new]; exists && noOverwrite {
		return fmt.Errorf("rename_key: target %q already exists", new)
	}
	delete(o.values, old)
	for i, k := range o.keys {
		if k == old {
			o.keys[i] = new
			break
		}
	}
	o.values[new] = v
	return nil
}

// clone returns a deep copy.
func (o *Object) clone() *Object {
	if o == nil {
		return nil
	}
	cp := &Object{
		keys:   append([]string(nil), o.keys...),
		values: make(map[string]Value, len(o.values)),
	}
	for k, v := range o.values {
		cp.values[k] = v.Clone()
	}
	return cp
}

// Constructors

func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

func String(s string) Value { return Bytes([]byte(s)) }

func Integer(i int64) Value { return Value{kind: KindInteger, integer: i} }

func Float(f float64) Value { return Value{kind: KindFloat, float: f} }

func Boolean(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, timestamp: t} }

func Regex(pattern string) Value { return Value{kind: KindRegex, regex: pattern} }

func Array(vs []Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindArray, array: cp}
}

func FromObject(o *Object) Value { return Value{kind: KindObject, object: o} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.integer, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.float, true
}

func (v Value) AsBoolean() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.boolean, true
}

func (v Value) AsTimestamp() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.timestamp, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.array, true
}

func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.object, true
}

// Coerce renders the value as a string the way the legacy scripting surface
// does: Null becomes an empty string rather than a nil/error, mirroring the
// reference implementation's Lua bridge.
func (v Value) Coerce() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBytes:
		return string(v.bytes)
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindFloat:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	case KindTimestamp:
		return v.timestamp.Format(time.RFC3339Nano)
	case KindRegex:
		return v.regex
	case KindArray:
		parts := make([]string, len(v.array))
		for i, e := range v.array {
			parts[i] = e.Coerce()
		}
		return fmt.Sprintf("%v", parts)
	case KindObject:
		keys := v.object.Keys()
		sort.Strings(keys)
		return fmt.Sprintf("%v", keys)
	default:
		return ""
	}
}

// Clone performs a deep copy, needed whenever an event fans out to multiple
// downstream components that may mutate their own copy independently.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		return Array(v.array)
	case KindObject:
		return Value{kind: KindObject, object: v.object.clone()}
	default:
		return v
	}
}

// AllocatedBytes approximates the heap footprint of the value, used for
// buffer byte accounting.
func (v Value) AllocatedBytes() int {
	const base = 16
	switch v.kind {
	case KindBytes:
		return base + len(v.bytes)
	case KindRegex:
		return base + len(v.regex)
	case KindArray:
		n := base
		for _, e := range v.array {
			n += e.AllocatedBytes()
		}
		return n
	case KindObject:
		n := base
		for _, k := range v.object.Keys() {
			val, _ := v.object.Get(k)
			n += len(k) + val.AllocatedBytes()
		}
		return n
	default:
		return base
	}
}
