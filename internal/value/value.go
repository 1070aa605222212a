// Package value is the in-memory model of decoded JSON input.
//
// Value is a closed tagged union: Null, Bool, Number, String, Array or Object.
// Numbers keep their original JSON literal so large integers and decimals are
// written to the sink exactly as they arrived. Objects keep first-seen key
// order, which drives column order in the generated headers.
//
// Values are immutable once built. Constructors copy their inputs.
package value

import (
	"bytes"
	"strconv"

	json "github.com/goccy/go-json"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Number is a JSON number kept as its literal text.
type Number string

func (n Number) String() string { return string(n) }

// Int64 parses the literal as a base-10 integer.
func (n Number) Int64() (int64, error) { return strconv.ParseInt(string(n), 10, 64) }

// Float64 parses the literal as a float.
func (n Number) Float64() (float64, error) { return strconv.ParseFloat(string(n), 64) }

// Value is one JSON value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	s    string
	arr  []Value
	obj  *Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num wraps a number literal. The literal is not validated.
func Num(lit string) Value { return Value{kind: KindNumber, s: lit} }

// Int wraps an integer.
func Int(i int64) Value { return Num(strconv.FormatInt(i, 10)) }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// FromObject wraps an object. A nil object becomes an empty object.
func FromObject(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsScalar() bool {
	return v.kind == KindBool || v.kind == KindNumber || v.kind == KindString
}
func (v Value) IsArray() bool   { return v.kind == KindArray }
func (v Value) IsObject() bool  { return v.kind == KindObject }
func (v Value) AsBool() bool    { return v.b }
func (v Value) Text() string    { return v.s }
func (v Value) Items() []Value  { return v.arr }
func (v Value) Object() *Object { return v.obj }

// Len returns the number of array items or object fields; 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	default:
		return 0
	}
}

// IsFalsy reports whether the value counts as "empty" when it sits in an
// object field: null, false, numeric zero, "", "0" and the empty array.
// An empty object is not falsy.
func (v Value) IsFalsy() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return !v.b
	case KindNumber:
		f, err := strconv.ParseFloat(v.s, 64)
		return err == nil && f == 0
	case KindString:
		return v.s == "" || v.s == "0"
	case KindArray:
		return len(v.arr) == 0
	default:
		return false
	}
}

// IsZeroLike reports the narrower "missing" notion: null, "" and the empty array.
func (v Value) IsZeroLike() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == ""
	case KindArray:
		return len(v.arr) == 0
	default:
		return false
	}
}

// Scalar returns the Go representation used for table cells:
// nil, bool, Number or string. Arrays and objects come back as their JSON text.
func (v Value) Scalar() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return Number(v.s)
	case KindString:
		return v.s
	default:
		return v.JSON()
	}
}

// JSON returns the compact JSON encoding of v.
func (v Value) JSON() string {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.String()
}

// MarshalJSON implements json.Marshaler with object key order preserved.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	out, err := Parse(b)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (v Value) encode(buf *bytes.Buffer) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.s)
	case KindString:
		writeString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			it.encode(buf)
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			v.obj.vals[k].encode(buf)
		}
		buf.WriteByte('}')
	}
}

func writeString(buf *bytes.Buffer, s string) {
	b, err := json.MarshalNoEscape(s)
	if err != nil {
		// Strings always marshal; fall back to Go quoting just in case.
		buf.WriteString(strconv.Quote(s))
		return
	}
	buf.Write(b)
}

// Equal reports deep equality. Object comparison ignores key order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber, KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for _, k := range a.obj.keys {
			bv, ok := b.obj.Get(k)
			if !ok || !Equal(a.obj.vals[k], bv) {
				return false
			}
		}
		return true
	}
	return false
}
