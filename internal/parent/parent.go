// Package parent describes how a child row points back at the row it came from.
package parent

import "jsonflat/internal/value"

// IDColumn is the column that holds a single-identifier link.
const IDColumn = "JSON_parentId"

// Column is one named link column.
type Column struct {
	Name  string
	Value value.Value
}

// Link is either nothing, a single identifier written to IDColumn, or an
// ordered list of named columns merged into every child row.
// The zero Link is "no link".
type Link struct {
	id      value.Value
	hasID   bool
	columns []Column
}

// None returns the empty link.
func None() Link { return Link{} }

// ID links child rows through IDColumn. A null or empty id yields no link.
func ID(id value.Value) Link {
	if id.IsZeroLike() {
		return Link{}
	}
	return Link{id: id, hasID: true}
}

// Columns links child rows through named columns, in the given order.
func Columns(cols ...Column) Link {
	if len(cols) == 0 {
		return Link{}
	}
	cp := make([]Column, len(cols))
	copy(cp, cols)
	return Link{columns: cp}
}

// IsNone reports whether the link adds no columns.
func (l Link) IsNone() bool { return !l.hasID && len(l.columns) == 0 }

// HasID reports whether the link is a single identifier.
func (l Link) HasID() bool { return l.hasID }

// IDValue returns the identifier of an ID link.
func (l Link) IDValue() value.Value { return l.id }

// ColumnList returns a copy of the named link columns.
func (l Link) ColumnList() []Column {
	out := make([]Column, len(l.columns))
	copy(out, l.columns)
	return out
}

// Names returns the column names the link contributes to a header.
func (l Link) Names() []string {
	if l.hasID {
		return []string{IDColumn}
	}
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.Name
	}
	return out
}

// Cells returns the link columns as (name, value) pairs in header order.
func (l Link) Cells() []Column {
	if l.hasID {
		return []Column{{Name: IDColumn, Value: l.id}}
	}
	return l.ColumnList()
}
