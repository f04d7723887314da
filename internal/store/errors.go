package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups where absence is a normal outcome.
var ErrNotFound = errors.New("not found")

// DurabilityError is the only fatal condition in this core: the durable
// append failed and the mutation was aborted, so in-memory state and the
// durable log stay consistent.
type DurabilityError struct {
	Op  string
	Err error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durable %s failed: %v", e.Op, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }
