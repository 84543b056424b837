package hashmap

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/copystructure"
	"github.com/tevino/abool"

	"github.com/ainotebook/notebase/database/storage"
)

// HashMap storage. All connections to the same location share their data
// for the lifetime of the process.
type HashMap struct {
	name   string
	db     *memDB
	closed *abool.AtomicBool
}

type memDB struct {
	lock        sync.RWMutex
	version     uint64
	collections map[string]*memCollection
}

type memCollection struct {
	sequence uint64
	entries  map[uint64]*storage.Entry
	indexes  map[string]bool
}

var (
	databases     = make(map[string]*memDB)
	databasesLock sync.Mutex
)

func init() {
	_ = storage.Register("hashmap", NewHashMap, DestroyHashMap)
}

// NewHashMap creates a hashmap database or connects to an existing one at
// the same location.
func NewHashMap(name, location string) (storage.Interface, error) {
	databasesLock.Lock()
	defer databasesLock.Unlock()

	db, ok := databases[location]
	if !ok {
		db = &memDB{
			collections: make(map[string]*memCollection),
		}
		databases[location] = db
	}

	return &HashMap{
		name:   name,
		db:     db,
		closed: abool.New(),
	}, nil
}

// DestroyHashMap removes all data of a hashmap database.
func DestroyHashMap(_, location string) error {
	databasesLock.Lock()
	defer databasesLock.Unlock()

	delete(databases, location)
	return nil
}

func copyEntry(entry *storage.Entry) (*storage.Entry, error) {
	c, err := copystructure.Copy(entry)
	if err != nil {
		return nil, err
	}
	copied, ok := c.(*storage.Entry)
	if !ok {
		return nil, fmt.Errorf("unexpected copy type %T", c)
	}
	return copied, nil
}

func (hm *HashMap) collection(name string) (*memCollection, error) {
	if hm.closed.IsSet() {
		return nil, storage.ErrClosed
	}
	c, ok := hm.db.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNoCollection, name)
	}
	return c, nil
}

// Version returns the schema version of the database.
func (hm *HashMap) Version() (uint64, error) {
	if hm.closed.IsSet() {
		return 0, storage.ErrClosed
	}

	hm.db.lock.RLock()
	defer hm.db.lock.RUnlock()

	return hm.db.version, nil
}

// Upgrade runs a schema upgrade and sets the new version. Changes are
// applied to a copy of the database layout and only committed on success.
func (hm *HashMap) Upgrade(version uint64, fn func(storage.Schema) error) error {
	if hm.closed.IsSet() {
		return storage.ErrClosed
	}

	hm.db.lock.Lock()
	defer hm.db.lock.Unlock()

	s := &schema{
		collections: make(map[string]*memCollection, len(hm.db.collections)),
	}
	for name, c := range hm.db.collections {
		indexes := make(map[string]bool, len(c.indexes))
		for index, unique := range c.indexes {
			indexes[index] = unique
		}
		s.collections[name] = &memCollection{
			sequence: c.sequence,
			entries:  c.entries,
			indexes:  indexes,
		}
	}

	err := fn(s)
	if err != nil {
		return err
	}

	hm.db.collections = s.collections
	hm.db.version = version
	return nil
}

// Add stores a new entry.
func (hm *HashMap) Add(collection string, entry *storage.Entry) (uint64, error) {
	if entry.ID != 0 {
		return 0, storage.ErrIDAssigned
	}
	return hm.Put(collection, entry)
}

// Put stores an entry.
func (hm *HashMap) Put(collection string, entry *storage.Entry) (uint64, error) {
	copied, err := copyEntry(entry)
	if err != nil {
		return 0, err
	}

	hm.db.lock.Lock()
	defer hm.db.lock.Unlock()

	c, err := hm.collection(collection)
	if err != nil {
		return 0, err
	}

	id, err := storage.AssignID(copied.ID, c.sequence)
	if err != nil {
		return 0, err
	}

	// check unique indexes
	for index, unique := range c.indexes {
		value, ok := copied.Index[index]
		if !unique || !ok {
			continue
		}
		for existingID, existing := range c.entries {
			if existingID == id {
				continue
			}
			if v, has := existing.Index[index]; has && v == value {
				return 0, fmt.Errorf("%w: %s.%s=%q", storage.ErrConstraint, collection, index, value)
			}
		}
	}

	if id > c.sequence {
		c.sequence = id
	}
	copied.ID = id
	c.entries[id] = copied
	return id, nil
}

// Get returns the data of an entry.
func (hm *HashMap) Get(collection string, id uint64) ([]byte, error) {
	hm.db.lock.RLock()
	defer hm.db.lock.RUnlock()

	c, err := hm.collection(collection)
	if err != nil {
		return nil, err
	}
	entry, ok := c.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyBytes(entry.Data), nil
}

// Scan iterates over all entries of a collection.
func (hm *HashMap) Scan(collection string, fn func(id uint64, data []byte) error) error {
	return hm.scan(collection, func(*storage.Entry) bool { return true }, fn)
}

// ScanIndex iterates over all entries with the given index value.
func (hm *HashMap) ScanIndex(collection, index, value string, fn func(id uint64, data []byte) error) error {
	hm.db.lock.RLock()
	c, err := hm.collection(collection)
	if err == nil {
		if _, ok := c.indexes[index]; !ok {
			err = fmt.Errorf("%w: %s.%s", storage.ErrNoIndex, collection, index)
		}
	}
	hm.db.lock.RUnlock()
	if err != nil {
		return err
	}

	return hm.scan(collection, func(entry *storage.Entry) bool {
		v, ok := entry.Index[index]
		return ok && v == value
	}, fn)
}

// scan takes a snapshot of the matching entries, so that fn may access the
// database.
func (hm *HashMap) scan(collection string, match func(*storage.Entry) bool, fn func(id uint64, data []byte) error) error {
	hm.db.lock.RLock()
	c, err := hm.collection(collection)
	if err != nil {
		hm.db.lock.RUnlock()
		return err
	}
	ids := make([]uint64, 0, len(c.entries))
	data := make(map[uint64][]byte, len(c.entries))
	for id, entry := range c.entries {
		if match(entry) {
			ids = append(ids, id)
			data[id] = copyBytes(entry.Data)
		}
	}
	hm.db.lock.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := fn(id, data[id]); err != nil {
			return err
		}
	}
	return nil
}

// Delete deletes an entry.
func (hm *HashMap) Delete(collection string, id uint64) error {
	hm.db.lock.Lock()
	defer hm.db.lock.Unlock()

	c, err := hm.collection(collection)
	if err != nil {
		return err
	}
	delete(c.entries, id)
	return nil
}

// Clear deletes all entries of a collection.
func (hm *HashMap) Clear(collection string) error {
	hm.db.lock.Lock()
	defer hm.db.lock.Unlock()

	c, err := hm.collection(collection)
	if err != nil {
		return err
	}
	c.entries = make(map[uint64]*storage.Entry)
	return nil
}

// Close closes the connection. The data is kept until the database is
// destroyed.
func (hm *HashMap) Close() error {
	hm.closed.Set()
	return nil
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

type schema struct {
	collections map[string]*memCollection
}

func (s *schema) HasCollection(name string) (bool, error) {
	if err := storage.CheckName(name); err != nil {
		return false, err
	}
	_, ok := s.collections[name]
	return ok, nil
}

func (s *schema) CreateCollection(name string) error {
	if err := storage.CheckName(name); err != nil {
		return err
	}
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("%w: %s", storage.ErrCollectionExists, name)
	}
	s.collections[name] = &memCollection{
		entries: make(map[uint64]*storage.Entry),
		indexes: make(map[string]bool),
	}
	return nil
}

func (s *schema) CreateIndex(collection, index string, unique bool) error {
	if err := storage.CheckName(index); err != nil {
		return err
	}
	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNoCollection, collection)
	}
	if _, ok := c.indexes[index]; ok {
		return fmt.Errorf("%w: %s.%s", storage.ErrIndexExists, collection, index)
	}

	if unique {
		seen := make(map[string]struct{})
		for _, entry := range c.entries {
			value, ok := entry.Index[index]
			if !ok {
				continue
			}
			if _, dup := seen[value]; dup {
				return fmt.Errorf("%w: %s.%s=%q", storage.ErrConstraint, collection, index, value)
			}
			seen[value] = struct{}{}
		}
	}

	c.indexes[index] = unique
	return nil
}
