package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch indicates a required table exists with an
	// incompatible shape. Fatal: the run halts, no automatic migration.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrReportNotFound is returned when no rollup rows exist for a customer.
	ErrReportNotFound = errors.New("report not found")
)

// TransientError wraps a network or timeout failure from one of the stores.
// The operation is safe to retry from the same checkpoint; no state was
// advanced.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError, preserving nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// MalformedRecordError marks a single source record that cannot be applied.
// It is logged and skipped; the surrounding batch continues.
type MalformedRecordError struct {
	Position int
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at position %d: %s", e.Position, e.Reason)
}
