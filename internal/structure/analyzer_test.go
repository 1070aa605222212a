package structure

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"jsonflat/internal/nodepath"
	"jsonflat/internal/value"
)

func batch(t *testing.T, s string) []value.Value {
	t.Helper()
	items, err := value.ParseBatch([]byte(s))
	require.NoError(t, err)
	return items
}

var root = nodepath.New("root")

func TestAnalyzeRecordsNestedShapes(t *testing.T) {
	a := NewAnalyzer(nil)
	require.False(t, a.HasAnalyzed())

	err := a.Analyze(batch(t, `[{"id":1,"name":"a","tags":["x","y"],"addr":{"city":"Prague","geo":{"lat":1.5}},"grid":[[1,2]]}]`), root)
	require.NoError(t, err)
	require.True(t, a.HasAnalyzed())

	m := a.Map()
	require.Equal(t, []string{"root.tags", "root.addr.geo", "root.addr", "root.grid.[]", "root.grid", "root"}, m.Paths())

	d, ok := m.Get("root")
	require.True(t, ok)
	require.Equal(t, "{id:number,name:string,tags:array,addr:object,grid:array}", d.String())

	d, _ = m.Get("root.tags")
	require.Equal(t, value.KindString, d.Kind())

	d, _ = m.Get("root.grid")
	require.Equal(t, value.KindArray, d.Kind())
	d, _ = m.Get("root.grid.[]")
	require.Equal(t, value.KindNumber, d.Kind())
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	in := batch(t, `[{"a":1,"b":{"c":"x"}},{"a":2,"d":[true]}]`)

	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(in, root))
	first := a.Map().Clone()

	changed := 0
	a.OnChange = func(string) { changed++ }
	require.NoError(t, a.Analyze(in, root))

	require.Zero(t, changed, "second pass reported changes")
	require.Equal(t, first.Paths(), a.Map().Paths())
	for _, p := range first.Paths() {
		want, _ := first.Get(p)
		got, _ := a.Map().Get(p)
		require.Truef(t, want.Equal(got), "path %s: got=%s want=%s\n%s", p, got, want, spew.Sdump(a.Map()))
	}
}

func TestAnalyzeNullWidening(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(batch(t, `[{"a":1},{"a":null}]`), root))
	require.NoError(t, a.Analyze(batch(t, `[{"a":2}]`), root))

	d, _ := a.Map().Get("root")
	k, ok := d.FieldKind("a")
	require.True(t, ok)
	require.Equal(t, value.KindNumber, k)

	// Null first, concrete later.
	b := NewAnalyzer(nil)
	require.NoError(t, b.Analyze(batch(t, `[{"a":null}]`), root))
	require.NoError(t, b.Analyze(batch(t, `[{"a":"x"}]`), root))
	d, _ = b.Map().Get("root")
	k, _ = d.FieldKind("a")
	require.Equal(t, value.KindString, k)
}

func TestAnalyzeTypeConflict(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(batch(t, `[{"a":1}]`), root))

	err := a.Analyze(batch(t, `[{"a":"x"}]`), root)
	var tc *TypeConflictError
	require.True(t, errors.As(err, &tc), "want *TypeConflictError, got %v", err)
	require.Equal(t, "root", tc.Path)
	require.Equal(t, "a", tc.Field)
	require.Equal(t, value.KindNumber, tc.Previous)
	require.Equal(t, value.KindString, tc.Observed)

	d, _ := a.Map().Get("root")
	k, _ := d.FieldKind("a")
	require.Equal(t, value.KindNumber, k, "conflicting merge must not update the entry")
}

func TestAnalyzePathLevelConflict(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(batch(t, `[1,2]`), root))

	err := a.Analyze(batch(t, `[{"a":1}]`), root)
	var tc *TypeConflictError
	require.ErrorAs(t, err, &tc)
	require.Empty(t, tc.Field)
	require.Equal(t, value.KindNumber, tc.Previous)
	require.Equal(t, value.KindObject, tc.Observed)
}

func TestAnalyzeSkipsEmptyNestedObject(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(batch(t, `[{"a":{"x":1}}]`), root))
	require.NoError(t, a.Analyze(batch(t, `[{"a":{}}]`), root))

	d, _ := a.Map().Get("root.a")
	require.Equal(t, "{x:number}", d.String())

	b := NewAnalyzer(nil)
	require.NoError(t, b.Analyze(batch(t, `[{"a":{},"b":1}]`), root))
	d, _ = b.Map().Get("root")
	_, ok := d.FieldKind("a")
	require.False(t, ok, "empty nested object must not be recorded")
	require.False(t, b.Map().Has("root.a"))
}

func TestAnalyzeEmptyRootObjectIsReplaceable(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(batch(t, `[{}]`), root))
	require.True(t, a.Map().Has("root"))
	require.False(t, a.Map().Known("root"))

	require.NoError(t, a.Analyze(batch(t, `[{"a":1}]`), root))
	require.True(t, a.Map().Known("root"))
}

func TestMapJSONRoundTrip(t *testing.T) {
	a := NewAnalyzer(nil)
	require.NoError(t, a.Analyze(batch(t, `[{"id":1,"obj":{"k":true},"arr":[null]}]`), root))

	p := filepath.Join(t.TempDir(), "struct.json")
	require.NoError(t, SaveFile(p, a.Map()))

	got, err := LoadFile(p)
	require.NoError(t, err)
	require.Equal(t, a.Map().Paths(), got.Paths())

	d, _ := got.Get("root")
	require.Equal(t, "{id:number,obj:object,arr:array}", d.String())
	d, _ = got.Get("root.arr")
	require.Equal(t, value.KindNull, d.Kind())
}

func TestMapUnmarshalRejectsUnknownKind(t *testing.T) {
	m := NewMap()
	require.Error(t, m.UnmarshalJSON([]byte(`{"root":"integer"}`)))
	require.Error(t, m.UnmarshalJSON([]byte(`{"root":{"a":1}}`)))
	require.Error(t, m.UnmarshalJSON([]byte(`[]`)))
}
