package storage

// Interface is an open connection to one embedded database. A database
// holds named collections of records. Every collection has an
// auto-incrementing key generator and may have secondary indexes.
// Implementations must be safe for concurrent use.
type Interface interface {
	// Version returns the schema version of the database. A newly created
	// database has version 0.
	Version() (uint64, error)
	// Upgrade calls fn within a single write transaction and stores the new
	// version afterwards. Nothing is changed if fn fails.
	Upgrade(version uint64, fn func(Schema) error) error

	// Add stores a new entry and returns the ID assigned by the key
	// generator. The ID of the entry must be zero.
	Add(collection string, entry *Entry) (uint64, error)
	// Put stores an entry, replacing any existing entry with the same ID.
	// Entries without ID get a new ID from the key generator. Explicit IDs
	// above the current generator value advance the generator.
	Put(collection string, entry *Entry) (uint64, error)
	// Get returns the data stored with the given ID or ErrNotFound.
	Get(collection string, id uint64) ([]byte, error)
	// Scan calls fn for every entry in ascending ID order.
	Scan(collection string, fn func(id uint64, data []byte) error) error
	// ScanIndex calls fn in ascending ID order for every entry whose value
	// for the given index equals value.
	ScanIndex(collection, index, value string, fn func(id uint64, data []byte) error) error
	// Delete removes the entry with the given ID. Missing entries are ignored.
	Delete(collection string, id uint64) error
	// Clear removes all entries of a collection. The key generator is kept.
	Clear(collection string) error

	// Close closes the connection.
	Close() error
}

// Schema modifies the structure of a database during an upgrade.
type Schema interface {
	HasCollection(name string) (bool, error)
	CreateCollection(name string) error
	CreateIndex(collection, index string, unique bool) error
}

// Entry is a serialized record together with its index values.
type Entry struct {
	ID    uint64
	Data  []byte
	Index map[string]string
}

// Maintainer is an optional interface for storages that need periodic
// maintenance.
type Maintainer interface {
	Maintain() error
}
