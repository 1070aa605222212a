package cache

import (
	"fmt"

	"jsonflat/internal/parent"
	"jsonflat/internal/value"
)

func encodeEntry(e Entry) ([]byte, error) {
	obj := value.NewObject()
	obj.Set("type", value.String(e.Type))
	obj.Set("link", encodeLink(e.Link))
	obj.Set("data", value.Array(e.Batch...))
	return value.FromObject(obj).MarshalJSON()
}

func encodeLink(l parent.Link) value.Value {
	switch {
	case l.HasID():
		return value.FromObject(value.NewObject().Set("id", l.IDValue()))
	case l.IsNone():
		return value.Null()
	}
	cols := make([]value.Value, 0)
	for _, c := range l.ColumnList() {
		cols = append(cols, value.FromObject(value.NewObject().Set("name", value.String(c.Name)).Set("value", c.Value)))
	}
	return value.FromObject(value.NewObject().Set("columns", value.Array(cols...)))
}

func decodeEntry(raw []byte) (Entry, error) {
	v, err := value.Parse(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: decode entry: %w", err)
	}
	if !v.IsObject() {
		return Entry{}, fmt.Errorf("cache: decode entry: want object, got %s", v.Kind())
	}
	o := v.Object()
	typ, _ := o.Get("type")
	data, _ := o.Get("data")
	lv, _ := o.Get("link")

	link, err := decodeLink(lv)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Batch: data.Items(), Type: typ.Text(), Link: link}, nil
}

func decodeLink(v value.Value) (parent.Link, error) {
	if v.IsNull() {
		return parent.None(), nil
	}
	if !v.IsObject() {
		return parent.Link{}, fmt.Errorf("cache: decode link: want object, got %s", v.Kind())
	}
	if id, ok := v.Object().Get("id"); ok {
		return parent.ID(id), nil
	}
	cols, _ := v.Object().Get("columns")
	out := make([]parent.Column, 0, cols.Len())
	for _, c := range cols.Items() {
		name, _ := c.Object().Get("name")
		val, _ := c.Object().Get("value")
		out = append(out, parent.Column{Name: name.Text(), Value: val})
	}
	return parent.Columns(out...), nil
}
