package badger

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/tevino/abool"

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/utils"
)

const clearBatchSize = 1000

var versionKey = []byte("m:version")

// Badger database made pluggable for the storage layer.
type Badger struct {
	name string
	db   *badger.DB

	// writeLock serializes write transactions, so that they never conflict
	// on the key generator.
	writeLock sync.Mutex
	closed    *abool.AtomicBool
	closeOnce sync.Once
}

func init() {
	_ = storage.Register("badger", NewBadger, DestroyBadger)
}

// NewBadger opens/creates a badger database.
func NewBadger(name, location string) (storage.Interface, error) {
	err := utils.EnsureDirectory(location, utils.AdminOnlyPermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	opts := badger.DefaultOptions(location)
	opts = opts.WithLogger(log.NewLogger("badger:"))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Badger{
		name:   name,
		db:     db,
		closed: abool.New(),
	}, nil
}

// DestroyBadger removes a badger database.
func DestroyBadger(_, location string) error {
	return os.RemoveAll(location)
}

func (b *Badger) view(fn func(txn *badger.Txn) error) error {
	if b.closed.IsSet() {
		return storage.ErrClosed
	}
	return b.db.View(fn)
}

func (b *Badger) update(fn func(txn *badger.Txn) error) error {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	if b.closed.IsSet() {
		return storage.ErrClosed
	}
	return b.db.Update(fn)
}

// Version returns the schema version of the database.
func (b *Badger) Version() (version uint64, err error) {
	err = b.view(func(txn *badger.Txn) error {
		value, err := getValue(txn, versionKey)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		version, err = storage.DecodeID(value)
		return err
	})
	return version, err
}

// Upgrade runs a schema upgrade and sets the new version.
func (b *Badger) Upgrade(version uint64, fn func(storage.Schema) error) error {
	return b.update(func(txn *badger.Txn) error {
		err := fn(&schema{txn: txn})
		if err != nil {
			return err
		}
		return txn.Set(versionKey, storage.EncodeID(version))
	})
}

// Add stores a new entry.
func (b *Badger) Add(collection string, entry *storage.Entry) (uint64, error) {
	if entry.ID != 0 {
		return 0, storage.ErrIDAssigned
	}
	return b.Put(collection, entry)
}

// Put stores an entry.
func (b *Badger) Put(collectionName string, entry *storage.Entry) (id uint64, err error) {
	err = b.update(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collectionName)
		if err != nil {
			return err
		}
		id, err = c.put(entry)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the data of an entry.
func (b *Badger) Get(collectionName string, id uint64) (data []byte, err error) {
	err = b.view(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collectionName)
		if err != nil {
			return err
		}
		data, err = getValue(txn, c.recordKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Scan iterates over all entries of a collection.
func (b *Badger) Scan(collectionName string, fn func(id uint64, data []byte) error) error {
	return b.view(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collectionName)
		if err != nil {
			return err
		}

		prefix := c.recordPrefix()
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, err := storage.DecodeID(item.Key()[len(prefix):])
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(id, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanIndex iterates over all entries with the given index value.
func (b *Badger) ScanIndex(collectionName, index, value string, fn func(id uint64, data []byte) error) error {
	return b.view(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collectionName)
		if err != nil {
			return err
		}
		if _, ok := c.indexes()[index]; !ok {
			return fmt.Errorf("%w: %s.%s", storage.ErrNoIndex, collectionName, index)
		}

		indexPrefix := c.indexPrefix(index)
		prefix := append(indexPrefix, storage.IndexPrefix(value)...) //nolint:gocritic // indexPrefix is a fresh slice.
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, ok := storage.ParseIndexKey(it.Item().Key()[len(indexPrefix):], value)
			if !ok {
				continue
			}
			data, err := getValue(txn, c.recordKey(id))
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := fn(id, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete deletes an entry.
func (b *Badger) Delete(collectionName string, id uint64) error {
	return b.update(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collectionName)
		if err != nil {
			return err
		}
		return c.delete(id)
	})
}

// Clear deletes all entries of a collection.
func (b *Badger) Clear(collectionName string) error {
	// collect keys
	var keys [][]byte
	err := b.view(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collectionName)
		if err != nil {
			return err
		}

		prefixes := [][]byte{c.recordPrefix(), c.refPrefix()}
		for index := range c.indexes() {
			prefixes = append(prefixes, c.indexPrefix(index))
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for _, prefix := range prefixes {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// delete in batches to stay within transaction limits
	for len(keys) > 0 {
		batch := keys
		if len(batch) > clearBatchSize {
			batch = keys[:clearBatchSize]
		}
		keys = keys[len(batch):]

		err = b.update(func(txn *badger.Txn) error {
			for _, key := range batch {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Maintain runs a light maintenance operation on the database.
func (b *Badger) Maintain() error {
	if b.closed.IsSet() {
		return storage.ErrClosed
	}

	err := b.db.RunValueLogGC(0.7)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
		return err
	}
	return nil
}

// Close closes the database.
func (b *Badger) Close() (err error) {
	b.closeOnce.Do(func() {
		b.writeLock.Lock()
		defer b.writeLock.Unlock()

		b.closed.Set()
		err = b.db.Close()
	})
	return err
}
