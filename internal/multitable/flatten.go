package multitable

import (
	"context"
	"fmt"

	"jsonflat/internal/logging"
	"jsonflat/internal/metrics"
	"jsonflat/internal/nodepath"
	"jsonflat/internal/parent"
	"jsonflat/internal/structure"
	"jsonflat/internal/value"
)

// flattenBatch writes every row of batch into the table of p, recursing into
// child tables for nested arrays. Paths with no known structure are analyzed
// on the spot.
func (e *Engine) flattenBatch(ctx context.Context, batch []value.Value, p nodepath.Path, link parent.Link) error {
	key := p.String()
	if !e.analyzer.Map().Known(key) {
		e.log.Log(logging.Debug, "unknown data type "+key+" - trying on-the-fly analysis", logging.Fields{"type": key, "rows": len(batch)})
		if err := e.analyzer.Analyze(batch, p); err != nil {
			return &BatchError{BatchContext: BatchContext{Type: key, Data: batch, Link: link}, Err: err}
		}
	}

	h := e.header(p, link)
	t, err := e.table(ctx, p, h)
	if err != nil {
		return err
	}
	h.bind(t.Header())
	cells := link.Cells()

	for _, v := range batch {
		flat, err := e.flattenRow(ctx, v, p)
		if err != nil {
			return err
		}
		for _, c := range cells {
			flat[c.Name] = c.Value.Scalar()
		}
		if err := t.AppendRow(ctx, e.project(p, h, flat)); err != nil {
			return fmt.Errorf("multitable: append to %s: %w", t.Name(), err)
		}
		e.stats.RowsWritten++
		e.metrics.IncCounter(metrics.RowsWritten, 1, metrics.Labels{"table": t.Name()})
	}
	return nil
}

// flattenRow maps one value at p to raw column names.
// Columns that are absent come back missing; project fills them with nil.
func (e *Engine) flattenRow(ctx context.Context, v value.Value, p nodepath.Path) (map[string]any, error) {
	d, _ := e.analyzer.Map().Get(p.String())

	if d.IsObject() {
		switch {
		case v.IsObject():
			return e.flattenObject(ctx, v.Object(), p, d)
		case !v.IsNull():
			e.drift(p, "", value.KindObject, v)
		}
		return map[string]any{}, nil
	}

	switch {
	case v.IsNull():
		return map[string]any{dataColumn: nil}, nil
	case d.Kind() == value.KindNull:
		// Seen only as null during analysis.
		if v.IsScalar() {
			return map[string]any{dataColumn: v.Scalar()}, nil
		}
		return map[string]any{dataColumn: v.JSON()}, nil
	case d.Kind() == value.KindArray:
		if !v.IsArray() {
			e.drift(p, "", value.KindArray, v)
			return map[string]any{dataColumn: v.Scalar()}, nil
		}
		if v.Len() == 0 {
			return map[string]any{dataColumn: nil}, nil
		}
		id := e.ids.Next(p.String())
		if err := e.flattenBatch(ctx, v.Items(), p.Array(), parent.ID(value.String(id))); err != nil {
			return nil, err
		}
		return map[string]any{dataColumn: id}, nil
	default:
		if !v.IsScalar() {
			e.drift(p, "", d.Kind(), v)
			return map[string]any{dataColumn: v.JSON()}, nil
		}
		return map[string]any{dataColumn: v.Scalar()}, nil
	}
}

func (e *Engine) flattenObject(ctx context.Context, o *value.Object, p nodepath.Path, d structure.Descriptor) (map[string]any, error) {
	out := make(map[string]any, o.Len())
	for _, f := range d.Fields() {
		fv, ok := o.Get(f.Name)
		if !ok || e.isEmpty(fv) {
			continue
		}
		switch f.Kind {
		case value.KindArray:
			if !fv.IsArray() {
				e.drift(p, f.Name, f.Kind, fv)
				out[f.Name] = fv.Scalar()
				continue
			}
			id := e.ids.Next(p.String())
			if err := e.flattenBatch(ctx, fv.Items(), p.Field(f.Name), parent.ID(value.String(id))); err != nil {
				return nil, err
			}
			out[f.Name] = id
		case value.KindObject:
			if !fv.IsObject() {
				e.drift(p, f.Name, f.Kind, fv)
				continue
			}
			sub, err := e.flattenRow(ctx, fv, p.Field(f.Name))
			if err != nil {
				return nil, err
			}
			for k, sv := range sub {
				out[f.Name+"_"+k] = sv
			}
		default:
			if !fv.IsScalar() {
				if f.Kind != value.KindNull {
					e.drift(p, f.Name, f.Kind, fv)
				}
				out[f.Name] = fv.JSON()
				continue
			}
			out[f.Name] = fv.Scalar()
		}
	}
	return out, nil
}

// isEmpty reports whether a field value is written as null.
func (e *Engine) isEmpty(v value.Value) bool {
	if e.cfg.PreserveZeroValues {
		return v.IsZeroLike()
	}
	return v.IsFalsy()
}

// drift reports a value whose kind disagrees with the learned structure.
// The row is still written.
func (e *Engine) drift(p nodepath.Path, field string, want value.Kind, got value.Value) {
	e.stats.Drift++
	e.metrics.IncCounter(metrics.TypeDrift, 1, metrics.Labels{"type": p.String()})
	e.log.Log(logging.Error, "Data parse error - unexpected '"+got.Kind().String()+"'!", logging.Fields{
		"type":     p.String(),
		"field":    field,
		"expected": want.String(),
		"value":    got.JSON(),
	})
}
