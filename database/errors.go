package database

import (
	"errors"
	"fmt"
)

// Errors.
var (
	ErrBlocked             = errors.New("database deletion blocked by open connections")
	ErrNotInitialized      = errors.New("database system not initialized")
	ErrInitialized         = errors.New("database system already initialized")
	ErrVersionTooHigh      = errors.New("database schema version is newer than supported")
	ErrStorageTypeMismatch = errors.New("database is already open with another storage type")
	ErrClosedWhileOpening  = errors.New("store was closed while opening")
)

// ConnectionError is returned when the database could not be opened or
// initialized.
type ConnectionError struct {
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to open database %s: %s", e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ReadError is returned when records could not be read.
type ReadError struct {
	Database   string
	Collection string
	Op         string
	Err        error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to %s from %s/%s: %s", e.Op, e.Database, e.Collection, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError is returned when records could not be written or deleted.
type WriteError struct {
	Database   string
	Collection string
	Op         string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to %s in %s/%s: %s", e.Op, e.Database, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DeleteError is returned when a database could not be deleted.
type DeleteError struct {
	Database string
	Err      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete database %s: %s", e.Database, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
