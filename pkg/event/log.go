package event

import (
	"time"
)

// SchemaNamespace distinguishes the legacy interleaved field layout from the
// newer layout that separates source fields from pipeline metadata.
type SchemaNamespace int

const (
	SchemaLegacy SchemaNamespace = iota
	SchemaVector
)

// Log is an ordered mapping from path to Value, plus the fixed metadata
// every log entry carries (timestamp, host, source, namespace tag).
//
// Grounded on the teacher's LogEntry (pkg/types/types.go): same concerns
// (timestamp, source identification, structured fields) generalized from a
// fixed struct into a path-addressable tree per the event model.
type Log struct {
	root      *Object
	namespace SchemaNamespace
}

// NewLog returns an empty log under the given schema namespace.
func NewLog(ns SchemaNamespace) *Log {
	return &Log{root: NewObject(), namespace: ns}
}

func (l *Log) Namespace() SchemaNamespace { return l.namespace }

// Get walks path through the nested object/array tree, returning the value
// at that address if present.
func (l *Log) Get(p Path) (Value, bool) {
	cur := FromObject(l.root)
	for _, c := range p.Components {
		switch c.Kind {
		case ComponentKey:
			obj, ok := cur.AsObject()
			if !ok {
				return Value{}, false
			}
			v, ok := obj.Get(c.Key)
			if !ok {
				return Value{}, false
			}
			cur = v
		case ComponentIndex:
			arr, ok := cur.AsArray()
			if !ok || c.Index >= len(arr) {
				return Value{}, false
			}
			cur = arr[c.Index]
		}
	}
	return cur, true
}

// Insert sets the value at path, auto-creating missing intermediate objects
// (insertion is a total function), returning the previous value if any.
// Intermediate array components auto-extend with Null padding; an existing
// non-container value in the path is overwritten by a fresh container.
func (l *Log) Insert(p Path, v Value) (Value, bool) {
	if len(p.Components) == 0 {
		return Value{}, false
	}
	return insertInto(l.root, p.Components, v)
}

func insertInto(root *Object, comps []PathComponent, v Value) (Value, bool) {
	c := comps[0]
	if c.Kind != ComponentKey {
		// A path can't start below the root with a bare index; treat root
		// traversal as object-only. Callers addressing arrays do so via a
		// preceding key component.
		return Value{}, false
	}
	if len(comps) == 1 {
		return root.Set(c.Key, v)
	}

	existing, ok := root.Get(c.Key)
	next := comps[1]
	if next.Kind == ComponentKey {
		var childObj *Object
		if ok {
			if o, isObj := existing.AsObject(); isObj {
				childObj = o
			}
		}
		if childObj == nil {
			childObj = NewObject()
		}
		prev, existed := insertInto(childObj, comps[1:], v)
		root.Set(c.Key, FromObject(childObj))
		return prev, existed
	}

	// next is an index: the child at c.Key must be an array.
	var arr []Value
	if ok {
		if a, isArr := existing.AsArray(); isArr {
			arr = append([]Value(nil), a...)
		}
	}
	prev, existed, newArr := insertIntoArray(arr, comps[1:], v)
	root.Set(c.Key, Array(newArr))
	return prev, existed
}

func insertIntoArray(arr []Value, comps []PathComponent, v Value) (Value, bool, []Value) {
	idx := comps[0].Index
	for len(arr) <= idx {
		arr = append(arr, Null)
	}
	if len(comps) == 1 {
		prev := arr[idx]
		existed := prev.kind != KindNull
		arr[idx] = v
		return prev, existed, arr
	}

	next := comps[1]
	if next.Kind == ComponentKey {
		var childObj *Object
		if o, isObj := arr[idx].AsObject(); isObj {
			childObj = o
		} else {
			childObj = NewObject()
		}
		prev, existed := insertInto(childObj, comps[1:], v)
		arr[idx] = FromObject(childObj)
		return prev, existed, arr
	}

	var childArr []Value
	if a, isArr := arr[idx].AsArray(); isArr {
		childArr = append([]Value(nil), a...)
	}
	prev, existed, newChild := insertIntoArray(childArr, comps[1:], v)
	arr[idx] = Array(newChild)
	return prev, existed, arr
}

// Remove deletes the value at path, returning the previous value if any. If
// prune is true, empty parent objects left behind by the removal are
// removed in turn (stopping at the first non-empty ancestor).
func (l *Log) Remove(p Path, prune bool) (Value, bool) {
	if len(p.Components) == 0 {
		return Value{}, false
	}
	return removeFrom(l.root, p.Components, prune)
}

func removeFrom(root *Object, comps []PathComponent, prune bool) (Value, bool) {
	c := comps[0]
	if c.Kind != ComponentKey {
		return Value{}, false
	}
	if len(comps) == 1 {
		return root.Delete(c.Key)
	}
	existing, ok := root.Get(c.Key)
	if !ok {
		return Value{}, false
	}
	next := comps[1]
	if next.Kind == ComponentKey {
		childObj, isObj := existing.AsObject()
		if !isObj {
			return Value{}, false
		}
		prev, existed := removeFrom(childObj, comps[1:], prune)
		if prune && childObj.Len() == 0 {
			root.Delete(c.Key)
		}
		return prev, existed
	}
	arr, isArr := existing.AsArray()
	if !isArr {
		return Value{}, false
	}
	idx := next.Index
	if idx >= len(arr) {
		return Value{}, false
	}
	if len(comps) == 2 {
		prev := arr[idx]
		arr[idx] = Null
		root.Set(c.Key, Array(arr))
		return prev, prev.kind != KindNull
	}
	childObj, isObj := arr[idx].AsObject()
	if !isObj {
		return Value{}, false
	}
	prev, existed := removeFrom(childObj, comps[2:], prune)
	arr[idx] = FromObject(childObj)
	root.Set(c.Key, Array(arr))
	return prev, existed
}

// Keys returns the top-level keys in insertion order.
func (l *Log) Keys() []string { return l.root.Keys() }

// RenameKey is idempotent: a no-op if old is absent, and fails only when new
// already exists and noOverwrite was requested.
func (l *Log) RenameKey(old, new string, noOverwrite bool) error {
	return l.root.Rename(old, new, noOverwrite)
}

// AllFields enumerates every leaf path in the log, depth first, in
// insertion order.
func (l *Log) AllFields() []FieldPair {
	var out []FieldPair
	walkObject(l.root, "", &out)
	return out
}

// FieldPair is one leaf path/value pair yielded by AllFields.
type FieldPair struct {
	Path  string
	Value Value
}

func walkObject(o *Object, prefix string, out *[]FieldPair) {
	for _, k := range o.Keys() {
		v, _ := o.Get(k)
		p := k
		if prefix != "" {
			p = prefix + "." + escapeSegment(k)
		} else {
			p = escapeSegment(k)
		}
		walkValue(v, p, out)
	}
}

func walkValue(v Value, path string, out *[]FieldPair) {
	switch v.kind {
	case KindObject:
		if v.object.Len() == 0 {
			*out = append(*out, FieldPair{Path: path, Value: v})
			return
		}
		walkObject(v.object, path, out)
	case KindArray:
		if len(v.array) == 0 {
			*out = append(*out, FieldPair{Path: path, Value: v})
			return
		}
		for i, e := range v.array {
			walkValue(e, path+"["+itoa(i)+"]", out)
		}
	default:
		*out = append(*out, FieldPair{Path: path, Value: v})
	}
}

func escapeSegment(k string) string {
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

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var b [20]byte
	pos := len(b)
	for i > 0 {
		pos--
		b[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		b[pos] = '-'
	}
	return string(b[pos:])
}

// Well-known metadata paths used across sources/sinks.
var (
	PathTimestamp = MustParsePath("timestamp")
	PathHost      = MustParsePath("host")
	PathMessage   = MustParsePath("message")
	PathSource    = MustParsePath("source_type")
)

// SetTimestamp is a convenience wrapper for the common metadata field.
func (l *Log) SetTimestamp(t time.Time) { l.Insert(PathTimestamp, Timestamp(t)) }

// Timestamp returns the log's timestamp field, zero time if absent/wrong kind.
func (l *Log) Timestamp() time.Time {
	v, ok := l.Get(PathTimestamp)
	if !ok {
		return time.Time{}
	}
	t, _ := v.AsTimestamp()
	return t
}
