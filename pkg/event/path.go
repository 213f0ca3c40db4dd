package event

import (
	"fmt"
	"strconv"
	"strings"
)

// ComponentKind distinguishes a path segment that indexes a map from one
// that indexes an array.
type ComponentKind int

const (
	ComponentKey ComponentKind = iota
	ComponentIndex
	ComponentInvalid
)

// PathComponent is one segment of a parsed Path: either an object key or an
// array index.
type PathComponent struct {
	Kind  ComponentKind
	Key   string
	Index int
}

// Path is a parsed sequence of PathComponents addressing into a nested Log
// or Trace value. Grammar:
//
//	path    := segment ( ( '.' segment ) | ( '[' int ']' ) )*
//	segment := ident | '"' quoted '"'
//
// Backslash escapes a following '.', '[', ']' or '\\' inside an unquoted
// segment so it is treated as a literal character rather than a delimiter.
type Path struct {
	Components []PathComponent
}

// pathState mirrors the reference scanner's state machine, reimplemented as
// a straightforward Go rune scan rather than a transliteration.
type pathState int

const (
	stateStart pathState = iota
	stateKey
	stateEscape
	stateIndexDigits
	stateAfterSegment
)

// ParsePath parses a dotted/bracketed path expression. Negative indices and
// malformed bracket expressions are rejected.
func ParsePath(s string) (Path, error) {
	var p Path
	runes := []rune(s)
	n := len(runes)
	i := 0

	var cur strings.Builder
	flushKey := func() {
		p.Components = append(p.Components, PathComponent{Kind: ComponentKey, Key: cur.String()})
		cur.Reset()
	}

	state := stateStart
	for i < n {
		c := runes[i]
		switch state {
		case stateStart, stateAfterSegment:
			switch c {
			case '.':
				if state == stateStart {
					return Path{}, fmt.Errorf("invalid path %q: leading '.'", s)
				}
				state = stateKey
				i++
			case '[':
				state = stateIndexDigits
				i++
			default:
				state = stateKey
				// fall through without consuming c
			}
		case stateKey:
			switch c {
			case '\\':
				state = stateEscape
				i++
			case '.':
				flushKey()
				state = stateKey
				i++
			case '[':
				flushKey()
				state = stateIndexDigits
				i++
			default:
				cur.WriteRune(c)
				i++
			}
		case stateEscape:
			switch c {
			case '.', '[', ']', '\\':
				cur.WriteRune(c)
			default:
				cur.WriteByte('\\')
				cur.WriteRune(c)
			}
			state = stateKey
			i++
		case stateIndexDigits:
			if c == ']' {
				digits := cur.String()
				cur.Reset()
				if digits == "" {
					return Path{}, fmt.Errorf("invalid path %q: empty index", s)
				}
				idx, err := strconv.Atoi(digits)
				if err != nil {
					return Path{}, fmt.Errorf("invalid path %q: bad index %q", s, digits)
				}
				if idx < 0 {
					return Path{}, fmt.Errorf("invalid path %q: negative index", s)
				}
				p.Components = append(p.Components, PathComponent{Kind: ComponentIndex, Index: idx})
				state = stateAfterSegment
				i++
			} else {
				cur.WriteRune(c)
				i++
			}
		}
	}

	switch state {
	case stateKey:
		flushKey()
	case stateIndexDigits:
		return Path{}, fmt.Errorf("invalid path %q: unterminated index", s)
	case stateEscape:
		return Path{}, fmt.Errorf("invalid path %q: dangling escape", s)
	}

	if len(p.Components) == 0 {
		return Path{}, fmt.Errorf("invalid path %q: empty", s)
	}
	return p, nil
}

// MustParsePath parses a path and panics on error; intended for constant,
// compile-time-known path literals.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path back to its textual form.
func (p Path) String() string {
	var b strings.Builder
	for i, c := range p.Components {
		switch c.Kind {
		case ComponentIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(c.Index))
			b.WriteByte(']')
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			for _, r := range c.Key {
				if r == '.' || r == '[' || r == ']' || r == '\\' {
					b.WriteByte('\\')
				}
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
