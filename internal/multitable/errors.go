package multitable

import (
	"errors"
	"fmt"

	"jsonflat/internal/parent"
	"jsonflat/internal/value"
)

// ErrDraining is returned by Process once Finalize has started.
var ErrDraining = errors.New("multitable: process called during finalize")

// BatchContext identifies the batch an error happened on.
type BatchContext struct {
	Type string
	Data []value.Value
	Link parent.Link
}

// EmptyDataError reports an empty batch for a type with no known structure.
type EmptyDataError struct {
	BatchContext
}

func (e *EmptyDataError) Error() string {
	return fmt.Sprintf("multitable: empty data set received for %s", e.Type)
}

// BatchError wraps a failure while analyzing or writing a batch.
// errors.As reaches the wrapped *structure.TypeConflictError.
type BatchError struct {
	BatchContext
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("multitable: type %s (%d rows): %v", e.Type, len(e.Data), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
