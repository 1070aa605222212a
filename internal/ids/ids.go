// Package ids generates the synthetic identifiers that join child-table rows
// to the parent row whose array they were extracted from.
package ids

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a fresh identifier for scope. Identifiers never repeat
// within one Generator.
type Generator interface {
	Next(scope string) string
}

// UUID produces "<scope>_<uuid hex>" identifiers.
type UUID struct{}

func (UUID) Next(scope string) string {
	return scope + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Sequence produces "<scope>_<n>" with n counting from 1 across all scopes.
// Deterministic output makes it the generator of choice in tests.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next(scope string) string {
	return scope + "_" + strconv.FormatUint(s.n.Add(1), 10)
}

// ByName returns the generator configured as "uuid" (default) or "sequence".
func ByName(name string) (Generator, bool) {
	switch name {
	case "", "uuid":
		return UUID{}, true
	case "sequence":
		return &Sequence{}, true
	default:
		return nil, false
	}
}
