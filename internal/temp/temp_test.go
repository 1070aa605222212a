package temp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTempLazyCreate(t *testing.T) {
	tmp := NewIn(t.TempDir(), "json-parser-data")
	if tmp.Created() {
		t.Fatalf("Created()=true before first use")
	}

	f, err := tmp.CreateFile("root.csv")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	_ = f.Close()

	dir, _ := tmp.Dir()
	if !strings.HasPrefix(filepath.Base(dir), "json-parser-data-") {
		t.Fatalf("dir=%q, want json-parser-data- prefix", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "root.csv")); err != nil {
		t.Fatalf("file missing: %v", err)
	}

	if err := tmp.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("dir still present after Remove: %v", err)
	}
}

func TestTempRemoveUnused(t *testing.T) {
	if err := New("x").Remove(); err != nil {
		t.Fatalf("Remove on unused temp: %v", err)
	}
}
