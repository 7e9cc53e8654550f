package rig

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the rig endpoint could not be reached.
// It is retried with backoff by the caller, never fatal.
var ErrUnavailable = errors.New("rig unavailable")

// OpError wraps an I/O failure of a single rig operation.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("rig %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
