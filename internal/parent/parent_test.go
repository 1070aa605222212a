package parent

import (
	"reflect"
	"testing"

	"jsonflat/internal/value"
)

func TestLinkNames(t *testing.T) {
	tests := []struct {
		name string
		l    Link
		want []string
	}{
		{name: "none", l: None(), want: []string{}},
		{name: "id", l: ID(value.String("root_1")), want: []string{IDColumn}},
		{name: "empty_id_is_none", l: ID(value.String("")), want: []string{}},
		{name: "null_id_is_none", l: ID(value.Null()), want: []string{}},
		{
			name: "columns",
			l:    Columns(Column{Name: "order_id", Value: value.Int(7)}, Column{Name: "shop", Value: value.String("cz")}),
			want: []string{"order_id", "shop"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.l.Names()
			if len(got) == 0 && len(tc.want) == 0 {
				if !tc.l.IsNone() {
					t.Fatalf("IsNone()=false for link without columns")
				}
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Names()=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestLinkCells(t *testing.T) {
	cells := ID(value.String("root_1")).Cells()
	if len(cells) != 1 || cells[0].Name != IDColumn || cells[0].Value.Text() != "root_1" {
		t.Fatalf("Cells()=%+v", cells)
	}
}
