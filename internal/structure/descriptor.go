// Package structure records the shape of JSON observed at each node path.
//
// A Map holds one Descriptor per canonical path string. The Analyzer walks
// batches of values, derives a Descriptor per row and merges it into the Map.
// Merging only widens: a Null placeholder may be replaced by any concrete
// kind, new object fields are appended, and a field that is already known
// with a concrete kind never changes. Observing a second, different concrete
// kind is a *TypeConflictError.
package structure

import (
	"strings"

	"jsonflat/internal/value"
)

// Field is one entry of an object descriptor.
type Field struct {
	Name string
	Kind value.Kind
}

// Descriptor is the inferred shape at one path.
//
// For value.KindObject it carries the ordered field list. For every other
// kind (including value.KindArray, whose element shape lives at the child
// path) it is a bare leaf.
type Descriptor struct {
	kind   value.Kind
	fields []Field
}

// Leaf returns a descriptor for a non-object kind.
func Leaf(k value.Kind) Descriptor { return Descriptor{kind: k} }

// ObjectOf returns an object descriptor with the given fields in order.
func ObjectOf(fields ...Field) Descriptor {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Descriptor{kind: value.KindObject, fields: cp}
}

func (d Descriptor) Kind() value.Kind { return d.kind }

// IsObject reports whether d describes an object.
func (d Descriptor) IsObject() bool { return d.kind == value.KindObject }

// IsEmptyObject reports whether d is an object descriptor with no fields.
// Such an entry carries no information and is replaced on the next merge.
func (d Descriptor) IsEmptyObject() bool { return d.kind == value.KindObject && len(d.fields) == 0 }

// Fields returns a copy of the object fields in first-seen order.
func (d Descriptor) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// FieldKind returns the kind recorded for name.
func (d Descriptor) FieldKind(name string) (value.Kind, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f.Kind, true
		}
	}
	return value.KindNull, false
}

// Equal compares kinds and, for objects, the field set. Field order is ignored.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.kind != o.kind || len(d.fields) != len(o.fields) {
		return false
	}
	for _, f := range d.fields {
		k, ok := o.FieldKind(f.Name)
		if !ok || k != f.Kind {
			return false
		}
	}
	return true
}

func (d Descriptor) String() string {
	if !d.IsObject() {
		return d.kind.String()
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(f.Kind.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// KindFromName parses the names produced by value.Kind.String.
func KindFromName(s string) (value.Kind, bool) {
	switch s {
	case "null":
		return value.KindNull, true
	case "boolean":
		return value.KindBool, true
	case "number":
		return value.KindNumber, true
	case "string":
		return value.KindString, true
	case "array":
		return value.KindArray, true
	case "object":
		return value.KindObject, true
	default:
		return value.KindNull, false
	}
}
