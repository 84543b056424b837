package database

import (
	"time"

	"github.com/ainotebook/notebase/formats/dsd"
)

type options struct {
	storageType          string
	format               uint8
	compression          uint8
	closeOnVersionChange bool
	blockedTimeout       time.Duration
}

// Option configures a Store.
type Option func(*options)

func defaultOptions() options {
	return options{
		storageType:    DefaultStorageType(),
		format:         dsd.JSON,
		compression:    dsd.NONE,
		blockedTimeout: getDefaultBlockedTimeout(),
	}
}

// WithStorageType sets the storage engine of the database. All stores of a
// database must use the same storage type.
func WithStorageType(storageType string) Option {
	return func(o *options) {
		o.storageType = storageType
	}
}

// WithFormat sets the dsd format records are serialized with. Stored
// records are always read in the format they were written in.
func WithFormat(format uint8) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithCompression sets the dsd compression records are stored with.
func WithCompression(compression uint8) Option {
	return func(o *options) {
		o.compression = compression
	}
}

// CloseOnVersionChange makes the store close its connection when another
// store wants to delete the database.
func CloseOnVersionChange() Option {
	return func(o *options) {
		o.closeOnVersionChange = true
	}
}

// WithBlockedTimeout sets how long DeleteDatabase waits for other
// connections to close. Zero waits until the context ends.
func WithBlockedTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.blockedTimeout = timeout
	}
}
