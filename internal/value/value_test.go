package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeepsKeyOrderAndLiterals(t *testing.T) {
	v, err := Parse([]byte(`{"z":1,"a":12345678901234567890,"m":1.50,"s":"x","n":null,"b":true}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())
	require.Equal(t, []string{"z", "a", "m", "s", "n", "b"}, v.Object().Keys())

	a, _ := v.Object().Get("a")
	require.Equal(t, KindNumber, a.Kind())
	require.Equal(t, "12345678901234567890", a.Text())

	m, _ := v.Object().Get("m")
	require.Equal(t, "1.50", m.Text())

	require.Equal(t, `{"z":1,"a":12345678901234567890,"m":1.50,"s":"x","n":null,"b":true}`, v.JSON())
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)

	_, err = Parse([]byte(``))
	require.Error(t, err)
}

func TestParseBatch(t *testing.T) {
	items, err := ParseBatch([]byte(`[1,"two",[3],{"four":4}]`))
	require.NoError(t, err)
	require.Len(t, items, 4)
	require.Equal(t, KindArray, items[2].Kind())

	_, err = ParseBatch([]byte(`{"a":1}`))
	require.Error(t, err)
}

func TestIsFalsy(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`null`, true},
		{`false`, true},
		{`true`, false},
		{`0`, true},
		{`0.0`, true},
		{`-0`, true},
		{`1`, false},
		{`""`, true},
		{`"0"`, true},
		{`"00"`, false},
		{`" "`, false},
		{`[]`, true},
		{`[null]`, false},
		{`{}`, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, MustParse(tc.in).IsFalsy())
		})
	}
}

func TestScalar(t *testing.T) {
	require.Nil(t, Null().Scalar())
	require.Equal(t, true, Bool(true).Scalar())
	require.Equal(t, Number("42"), Int(42).Scalar())
	require.Equal(t, "x", String("x").Scalar())
	require.Equal(t, `[1,{"a":"<b>"}]`, MustParse(`[1,{"a":"<b>"}]`).Scalar())
}

func TestEqualIgnoresObjectKeyOrder(t *testing.T) {
	require.True(t, Equal(MustParse(`{"a":1,"b":[true]}`), MustParse(`{"b":[true],"a":1}`)))
	require.False(t, Equal(MustParse(`{"a":1}`), MustParse(`{"a":"1"}`)))
	require.False(t, Equal(MustParse(`[1,2]`), MustParse(`[2,1]`)))
}

func TestObjectDuplicateKeyKeepsFirstPosition(t *testing.T) {
	v := MustParse(`{"a":1,"b":2,"a":3}`)
	require.Equal(t, []string{"a", "b"}, v.Object().Keys())
	a, _ := v.Object().Get("a")
	require.Equal(t, "3", a.Text())
}
