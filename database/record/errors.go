package record

import "errors"

// Errors.
var (
	ErrMissingName  = errors.New("record has no name")
	ErrIDAssigned   = errors.New("record already has an id")
	ErrIDOutOfRange = errors.New("record id out of range")
	ErrImmutableID  = errors.New("record id cannot be changed through attributes")
)
