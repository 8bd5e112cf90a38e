// Package pdfraw implements the minimal raw-object layer behind the engine's
// mutation API: parsing existing objects out of a PDF byte stream and
// serializing the incremental-update section appended on save. It is not a
// general-purpose PDF parser; constructs outside that scope fail with
// explicit errors.
package pdfraw

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Object is any raw PDF value.
type Object interface {
	writeTo(buf *bytes.Buffer)
}

type Null struct{}

type Bool bool

type Number float64

// String is a literal string value (already unescaped).
type String []byte

// Name is a name value without the leading slash.
type Name string

type Array []Object

type Dict map[Name]Object

// Ref is an indirect reference.
type Ref struct {
	Num, Gen int
}

// Stream pairs a stream dictionary with its raw, still-encoded data.
type Stream struct {
	Dict Dict
	Raw  []byte
}

func (Null) writeTo(buf *bytes.Buffer) { buf.WriteString("null") }

func (b Bool) writeTo(buf *bytes.Buffer) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

func (n Number) writeTo(buf *bytes.Buffer) { buf.WriteString(FormatNumber(float64(n))) }

// FormatNumber renders a PDF number: integers without a decimal point,
// reals with the shortest representation.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s String) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

func (n Name) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= ' ' || c == '/' || c == '#' || c == '(' || c == ')' || c == '<' || c == '>' || c == '[' || c == ']' || c == '{' || c == '}' || c == '%' || c > '~' {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func (a Array) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, item := range a {
		if i > 0 {
			buf.WriteByte(' ')
		}
		item.writeTo(buf)
	}
	buf.WriteByte(']')
}

func (d Dict) writeTo(buf *bytes.Buffer) {
	// Sorted keys keep serialization deterministic across runs.
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		Name(k).writeTo(buf)
		buf.WriteByte(' ')
		d[Name(k)].writeTo(buf)
	}
	buf.WriteString(">>")
}

func (r Ref) writeTo(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%d %d R", r.Num, r.Gen)
}

func (s Stream) writeTo(buf *bytes.Buffer) {
	d := s.Dict
	if d == nil {
		d = Dict{}
	}
	d[Name("Length")] = Number(len(s.Raw))
	d.writeTo(buf)
	buf.WriteString("\nstream\n")
	buf.Write(s.Raw)
	buf.WriteString("\nendstream")
}

// Serialize renders obj as bytes.
func Serialize(obj Object) []byte {
	var buf bytes.Buffer
	obj.writeTo(&buf)
	return buf.Bytes()
}

// Clone returns a deep copy of obj. Refs are copied as-is.
func Clone(obj Object) Object {
	switch v := obj.(type) {
	case Array:
		out := make(Array, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case Dict:
		out := make(Dict, len(v))
		for k, item := range v {
			out[k] = Clone(item)
		}
		return out
	case String:
		return String(append([]byte(nil), v...))
	case Stream:
		return Stream{Dict: Clone(v.Dict).(Dict), Raw: append([]byte(nil), v.Raw...)}
	default:
		return v
	}
}

// DictGet resolves nothing; it is a nil-safe map lookup.
func DictGet(d Dict, key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d[Name(key)]
	return v, ok
}
