package structure

import (
	"fmt"
	"os"

	"jsonflat/internal/nodepath"
	"jsonflat/internal/value"
)

// Analyzer derives descriptors from rows and merges them into a Map.
//
// When to use:
//   - The engine calls Analyze for every batch it has not become confident
//     about yet, and just in time for batches whose path is still unknown.
//
// Edge cases:
//   - Analyze is idempotent: analyzing the same batch twice leaves the Map
//     unchanged the second time.
//   - An empty nested object is skipped entirely. It does not add a field
//     and it does not erase a shape learned earlier.
//   - Arrays nested directly inside arrays are analyzed at path + "[]".
//
// Errors:
//   - Returns a *TypeConflictError on the first incompatible observation.
//     Entries merged before the conflict stay merged.
type Analyzer struct {
	m        *Map
	analyzed bool

	// OnChange, when set, is called with every path whose entry changed.
	OnChange func(path string)
}

// NewAnalyzer returns an analyzer writing into m. A nil m starts a new map.
func NewAnalyzer(m *Map) *Analyzer {
	if m == nil {
		m = NewMap()
	}
	return &Analyzer{m: m}
}

// Map returns the map the analyzer writes into.
func (a *Analyzer) Map() *Map { return a.m }

// HasAnalyzed reports whether Analyze has completed at least once.
func (a *Analyzer) HasAnalyzed() bool { return a.analyzed }

// Analyze merges the shape of every row of batch at path p.
func (a *Analyzer) Analyze(batch []value.Value, p nodepath.Path) error {
	for _, row := range batch {
		if err := a.analyzeRow(row, p); err != nil {
			return err
		}
	}
	a.analyzed = true
	return nil
}

func (a *Analyzer) analyzeRow(row value.Value, p nodepath.Path) error {
	var d Descriptor
	switch row.Kind() {
	case value.KindObject:
		fields := make([]Field, 0, row.Len())
		var err error
		row.Object().Range(func(k string, v value.Value) bool {
			switch v.Kind() {
			case value.KindObject:
				if v.Len() == 0 {
					return true
				}
				if err = a.analyzeRow(v, p.Field(k)); err != nil {
					return false
				}
			case value.KindArray:
				if err = a.Analyze(v.Items(), p.Field(k)); err != nil {
					return false
				}
			}
			fields = append(fields, Field{Name: k, Kind: v.Kind()})
			return true
		})
		if err != nil {
			return err
		}
		d = ObjectOf(fields...)
	case value.KindArray:
		if err := a.Analyze(row.Items(), p.Array()); err != nil {
			return err
		}
		d = Leaf(value.KindArray)
	default:
		d = Leaf(row.Kind())
	}

	key := p.String()
	changed, err := a.m.Merge(key, d)
	if err != nil {
		return err
	}
	if changed && a.OnChange != nil {
		a.OnChange(key)
	}
	return nil
}

// LoadFile reads a map previously written by SaveFile.
func LoadFile(path string) (*Map, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("structure: read %s: %w", path, err)
	}
	m := NewMap()
	if err := m.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("structure: %s: %w", path, err)
	}
	return m, nil
}

// SaveFile writes m as JSON.
func SaveFile(path string, m *Map) error {
	b, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("structure: write %s: %w", path, err)
	}
	return nil
}
