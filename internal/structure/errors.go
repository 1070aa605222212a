package structure

import (
	"fmt"

	"jsonflat/internal/value"
)

// TypeConflictError reports that a path (or one of its object fields) was
// observed with two different non-null kinds.
//
// Field is empty when the conflict is at the path itself, for example a path
// that held numbers and then received an object.
type TypeConflictError struct {
	Path     string
	Field    string
	Previous value.Kind
	Observed value.Kind
}

func (e *TypeConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("structure: unhandled type change at %q between (previous)%s and (new)%s",
			e.Path, e.Previous, e.Observed)
	}
	return fmt.Sprintf("structure: unhandled type change at %q between (previous)%s and (new)%s in %s",
		e.Path, e.Previous, e.Observed, e.Field)
}
