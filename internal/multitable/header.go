package multitable

import (
	"sort"

	"jsonflat/internal/logging"
	"jsonflat/internal/nodepath"
	"jsonflat/internal/parent"
	"jsonflat/internal/storage"
	"jsonflat/internal/value"
)

// dataColumn holds the value of rows whose path is not an object.
const dataColumn = "data"

// header is the fixed column list of one type path.
// raw names are what flattenRow produces; safe names are what the sink sees.
type header struct {
	raw  []string
	safe []string

	// cols is the header of the table the path writes to and src the raw
	// column feeding each of them (-1 for none). Set by bind.
	cols []string
	src  []int
}

// header returns the cached header for p, building it on first use.
// Link columns follow the structure columns.
func (e *Engine) header(p nodepath.Path, link parent.Link) *header {
	key := p.String()
	if h, ok := e.headers[key]; ok {
		return h
	}
	raw := append(e.rawHeader(p), link.Names()...)
	h := &header{raw: raw, safe: e.cfg.Naming.Header(raw)}
	e.headers[key] = h
	return h
}

// rawHeader lists the unsanitized columns of p. Nested objects contribute
// their own columns prefixed with "<field>_".
func (e *Engine) rawHeader(p nodepath.Path) []string {
	d, ok := e.analyzer.Map().Get(p.String())
	if !ok || !d.IsObject() {
		return []string{dataColumn}
	}
	out := make([]string, 0, len(d.Fields()))
	for _, f := range d.Fields() {
		if f.Kind != value.KindObject {
			out = append(out, f.Name)
			continue
		}
		for _, sub := range e.rawHeader(p.Field(f.Name)) {
			out = append(out, f.Name+"_"+sub)
		}
	}
	return out
}

// bind maps the table's header onto h. A table's header normally equals
// h.safe; a shared table may order or name columns differently.
func (h *header) bind(cols []string) {
	if h.cols != nil {
		return
	}
	bySafe := make(map[string]int, len(h.safe))
	for i, c := range h.safe {
		bySafe[c] = i
	}
	h.cols = cols
	h.src = make([]int, len(cols))
	for i, c := range cols {
		j, ok := bySafe[c]
		if !ok {
			j = -1
		}
		h.src[i] = j
	}
}

// project lays a flattened row onto the table header. Missing columns become
// nil; columns the table has no place for are dropped with a warning once per
// column.
func (e *Engine) project(p nodepath.Path, h *header, flat map[string]any) storage.Row {
	row := make(storage.Row, len(h.cols))
	used := make(map[string]bool, len(flat))
	for i, c := range h.cols {
		if j := h.src[i]; j >= 0 {
			row[c] = flat[h.raw[j]]
			used[h.raw[j]] = true
			continue
		}
		row[c] = nil
	}

	var extra []string
	for c := range flat {
		if !used[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		e.warnOnce("drop:"+p.String()+"\x00"+c, "dropping column "+c+" not in header of "+p.String(),
			logging.Fields{"type": p.String(), "column": c})
	}
	return row
}
