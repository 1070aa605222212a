// Package temp provides a run-scoped scratch directory.
//
// The directory is created on first use, so runs that never spill or write
// local files never touch the filesystem.
package temp

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Temp owns one scratch directory named "<prefix>-<uuid>" under Base.
type Temp struct {
	prefix string
	base   string

	mu  sync.Mutex
	dir string
}

// New returns a Temp rooted at os.TempDir().
func New(prefix string) *Temp {
	return NewIn("", prefix)
}

// NewIn returns a Temp rooted at base. An empty base means os.TempDir().
func NewIn(base, prefix string) *Temp {
	if prefix == "" {
		prefix = "jsonflat"
	}
	return &Temp{prefix: prefix, base: base}
}

// Dir returns the scratch directory, creating it on first call.
func (t *Temp) Dir() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dir != "" {
		return t.dir, nil
	}
	base := t.base
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, t.prefix+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("temp: create %s: %w", dir, err)
	}
	t.dir = dir
	return dir, nil
}

// CreateFile creates (truncating) a file inside the scratch directory.
func (t *Temp) CreateFile(name string) (*os.File, error) {
	dir, err := t.Dir()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("temp: create file %s: %w", name, err)
	}
	return f, nil
}

// Created reports whether the directory exists yet.
func (t *Temp) Created() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir != ""
}

// Remove deletes the directory and everything in it. Safe to call when the
// directory was never created.
func (t *Temp) Remove() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dir == "" {
		return nil
	}
	err := os.RemoveAll(t.dir)
	t.dir = ""
	return err
}
