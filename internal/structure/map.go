package structure

import (
	"fmt"

	"jsonflat/internal/value"
)

// Map is the Structure Map: canonical path string to Descriptor, insertion ordered.
//
// Concurrency:
//   - Not safe for concurrent use. The engine that owns it serializes access.
type Map struct {
	order   []string
	entries map[string]Descriptor
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{entries: map[string]Descriptor{}}
}

// Get returns the descriptor recorded for path.
func (m *Map) Get(path string) (Descriptor, bool) {
	d, ok := m.entries[path]
	return d, ok
}

// Has reports whether path has any entry.
func (m *Map) Has(path string) bool {
	_, ok := m.entries[path]
	return ok
}

// Known reports whether path has an entry that carries information, i.e. it
// exists and is not an object descriptor with zero fields.
func (m *Map) Known(path string) bool {
	d, ok := m.entries[path]
	return ok && !d.IsEmptyObject()
}

// Paths returns the recorded paths in first-seen order.
func (m *Map) Paths() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of recorded paths.
func (m *Map) Len() int { return len(m.order) }

// Clone returns an independent copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, p := range m.order {
		out.set(p, m.entries[p])
	}
	return out
}

func (m *Map) set(path string, d Descriptor) {
	if _, ok := m.entries[path]; !ok {
		m.order = append(m.order, path)
	}
	m.entries[path] = d
}

// Merge folds an observed descriptor into the entry for path.
//
// Rules:
//   - No entry, a Null entry, or an empty-object entry: adopt d.
//   - d equal to the entry, or d Null: no change.
//   - Both objects: fields missing from the entry or recorded as Null take the
//     observed kind; observed Null fields never downgrade; any other
//     difference is a *TypeConflictError naming the field.
//   - Any other kind mismatch is a *TypeConflictError for the path.
//
// The entry is updated only when no conflict is found.
// Merge reports whether the entry changed.
func (m *Map) Merge(path string, d Descriptor) (bool, error) {
	old, ok := m.entries[path]
	if !ok {
		m.set(path, d)
		return true, nil
	}
	if old.kind == value.KindNull || old.IsEmptyObject() {
		if old.Equal(d) {
			return false, nil
		}
		m.set(path, d)
		return true, nil
	}
	if d.kind == value.KindNull || old.Equal(d) {
		return false, nil
	}
	if !old.IsObject() || !d.IsObject() {
		return false, &TypeConflictError{Path: path, Previous: old.kind, Observed: d.kind}
	}

	merged := old.Fields()
	changed := false
	for _, f := range d.fields {
		idx := -1
		for i := range merged {
			if merged[i].Name == f.Name {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			merged = append(merged, f)
			changed = true
		case merged[idx].Kind == f.Kind:
		case merged[idx].Kind == value.KindNull:
			merged[idx].Kind = f.Kind
			changed = true
		case f.Kind == value.KindNull:
		default:
			return false, &TypeConflictError{Path: path, Field: f.Name, Previous: merged[idx].Kind, Observed: f.Kind}
		}
	}
	if changed {
		m.set(path, Descriptor{kind: value.KindObject, fields: merged})
	}
	return changed, nil
}

// MarshalJSON encodes the map as an ordered JSON object:
//
//	{"root": {"id": "number", "tags": "array"}, "root.tags": "string"}
func (m *Map) MarshalJSON() ([]byte, error) {
	root := value.NewObject()
	for _, p := range m.order {
		d := m.entries[p]
		if !d.IsObject() {
			root.Set(p, value.String(d.kind.String()))
			continue
		}
		fo := value.NewObject()
		for _, f := range d.fields {
			fo.Set(f.Name, value.String(f.Kind.String()))
		}
		root.Set(p, value.FromObject(fo))
	}
	return value.FromObject(root).MarshalJSON()
}

// UnmarshalJSON restores a map written by MarshalJSON.
func (m *Map) UnmarshalJSON(b []byte) error {
	v, err := value.Parse(b)
	if err != nil {
		return fmt.Errorf("structure: decode map: %w", err)
	}
	if !v.IsObject() {
		return fmt.Errorf("structure: decode map: want object, got %s", v.Kind())
	}
	out := NewMap()
	var derr error
	v.Object().Range(func(path string, entry value.Value) bool {
		switch entry.Kind() {
		case value.KindString:
			k, ok := KindFromName(entry.Text())
			if !ok {
				derr = fmt.Errorf("structure: path %q: unknown kind %q", path, entry.Text())
				return false
			}
			out.set(path, Leaf(k))
		case value.KindObject:
			var fields []Field
			entry.Object().Range(func(name string, fk value.Value) bool {
				k, ok := KindFromName(fk.Text())
				if !ok || fk.Kind() != value.KindString {
					derr = fmt.Errorf("structure: path %q field %q: unknown kind %s", path, name, fk.JSON())
					return false
				}
				fields = append(fields, Field{Name: name, Kind: k})
				return true
			})
			if derr != nil {
				return false
			}
			out.set(path, ObjectOf(fields...))
		default:
			derr = fmt.Errorf("structure: path %q: want kind name or object, got %s", path, entry.Kind())
			return false
		}
		return true
	})
	if derr != nil {
		return derr
	}
	*m = *out
	return nil
}
