package ids

import (
	"strings"
	"testing"
)

func TestSequence(t *testing.T) {
	var s Sequence
	if got := s.Next("root"); got != "root_1" {
		t.Fatalf("Next=%q, want root_1", got)
	}
	if got := s.Next("root.items"); got != "root.items_2" {
		t.Fatalf("Next=%q, want root.items_2", got)
	}
}

func TestUUIDUnique(t *testing.T) {
	g := UUID{}
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := g.Next("root")
		if !strings.HasPrefix(id, "root_") || len(id) != len("root_")+32 {
			t.Fatalf("unexpected id shape %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestByName(t *testing.T) {
	for _, n := range []string{"", "uuid", "sequence"} {
		if _, ok := ByName(n); !ok {
			t.Fatalf("ByName(%q) not found", n)
		}
	}
	if _, ok := ByName("snowflake"); ok {
		t.Fatalf("ByName(snowflake) unexpectedly found")
	}
}
