package storage

import (
	"fmt"
	"strconv"
)

// Text renders a cell for text-based backends. ok is false for nil (SQL NULL
// or an empty CSV field).
func Text(v any) (s string, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// Values orders a row by header, rendering every cell with Text.
// nil cells stay nil so SQL backends bind NULL.
func Values(header []string, row Row) []any {
	out := make([]any, len(header))
	for i, c := range header {
		if s, ok := Text(row[c]); ok {
			out[i] = s
		}
	}
	return out
}

// BaseTable holds the metadata every backend table carries.
type BaseTable struct {
	TableName string
	Columns   []string
	Attrs     map[string]string
}

// NewBaseTable copies spec into a BaseTable.
func NewBaseTable(spec TableSpec) BaseTable {
	cols := make([]string, len(spec.Columns))
	copy(cols, spec.Columns)
	attrs := make(map[string]string, len(spec.Attributes))
	for k, v := range spec.Attributes {
		attrs[k] = v
	}
	return BaseTable{TableName: spec.Name, Columns: cols, Attrs: attrs}
}

func (b *BaseTable) Name() string                  { return b.TableName }
func (b *BaseTable) Header() []string              { return b.Columns }
func (b *BaseTable) Attributes() map[string]string { return b.Attrs }
