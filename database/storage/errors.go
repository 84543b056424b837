package storage

import "errors"

// Errors for storages.
var (
	ErrNotFound           = errors.New("storage entry not found")
	ErrClosed             = errors.New("storage is closed")
	ErrNoCollection       = errors.New("collection does not exist")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrNoIndex            = errors.New("index does not exist")
	ErrIndexExists        = errors.New("index already exists")
	ErrConstraint         = errors.New("unique index constraint violated")
	ErrIDAssigned         = errors.New("entry already has an id")
	ErrIDOutOfRange       = errors.New("entry id out of range")
	ErrInvalidName        = errors.New("collection and index names must only contain alphanumeric and `_-` characters")
	ErrUnknownStorageType = errors.New("unknown storage type")
)
