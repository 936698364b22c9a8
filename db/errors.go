package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the base error for every failed lookup. Use errors.Is
	// to detect misses regardless of their kind.
	ErrNotFound = errors.New("not found")

	// ErrEmptyStore is returned when a lookup misses because the store holds
	// no rows at all, which usually means the wrong file was opened.
	ErrEmptyStore = errors.New("store is empty")

	// ErrReadonly is returned when writing to a store opened read-only.
	ErrReadonly = errors.New("store is readonly")

	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("store is closed")
)

// ErrKeyNotFound indicates a lookup miss on a store that does hold rows.
//
// The base ErrNotFound can be detected via errors.Is.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return fmt.Sprintf("no record for key %q", e.Key)
}

func (e *ErrKeyNotFound) Unwrap() error { return ErrNotFound }

// ErrDuplicateRow indicates that a sequence id or example key was written
// twice within one write session.
type ErrDuplicateRow struct {
	SeqID int64
	Key   string
}

func (e *ErrDuplicateRow) Error() string {
	return fmt.Sprintf("duplicate row: seq %d, key %q", e.SeqID, e.Key)
}
