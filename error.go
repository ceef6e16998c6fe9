package dbdb

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by Get and Delete when the key is absent.
	ErrKeyNotFound = errors.New("dbdb: key not found")

	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("dbdb: database closed")

	// ErrCorrupt is the sentinel every CorruptRecordError matches; test for
	// it with errors.Is.
	ErrCorrupt = errors.New("dbdb: corrupt record")
)

// CorruptRecordError reports a record that failed to decode, together with
// the file offset it was read from so the failure can be diagnosed.
type CorruptRecordError struct {
	Offset uint64
	Err    error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("dbdb: corrupt record at offset %d: %v", e.Offset, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// Is reports ErrCorrupt as a match so callers can use errors.Is(err,
// dbdb.ErrCorrupt) without caring about the wrapped cause.
func (e *CorruptRecordError) Is(target error) bool {
	return target == ErrCorrupt
}
