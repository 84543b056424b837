package bbolt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/utils"
)

const fileName = "db.bbolt"

var (
	metaBucketName    = []byte{0}
	versionKey        = []byte("version")
	recordsBucketName = []byte("records")
	refsBucketName    = []byte("refs")
	indexBucketPrefix = "index:"
)

// BBolt database made pluggable for the storage layer.
type BBolt struct {
	name string
	db   *bbolt.DB

	closeOnce sync.Once
}

func init() {
	_ = storage.Register("bbolt", NewBBolt, DestroyBBolt)
}

// NewBBolt opens/creates a bbolt database.
func NewBBolt(name, location string) (storage.Interface, error) {
	err := utils.EnsureDirectory(location, utils.AdminOnlyPermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(location, fileName), 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// Create meta bucket
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BBolt{
		name: name,
		db:   db,
	}, nil
}

// DestroyBBolt removes a bbolt database.
func DestroyBBolt(_, location string) error {
	return os.RemoveAll(location)
}

func wrapErr(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return storage.ErrClosed
	}
	return err
}

// Version returns the schema version of the database.
func (b *BBolt) Version() (version uint64, err error) {
	err = b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(metaBucketName).Get(versionKey)
		if value == nil {
			return nil
		}
		version, err = storage.DecodeID(value)
		return err
	})
	return version, wrapErr(err)
}

// Upgrade runs a schema upgrade and sets the new version.
func (b *BBolt) Upgrade(version uint64, fn func(storage.Schema) error) error {
	return wrapErr(b.db.Update(func(tx *bbolt.Tx) error {
		err := fn(&schema{tx: tx})
		if err != nil {
			return err
		}
		return tx.Bucket(metaBucketName).Put(versionKey, storage.EncodeID(version))
	}))
}

// Add stores a new entry.
func (b *BBolt) Add(collection string, entry *storage.Entry) (id uint64, err error) {
	if entry.ID != 0 {
		return 0, storage.ErrIDAssigned
	}
	return b.Put(collection, entry)
}

// Put stores an entry.
func (b *BBolt) Put(collection string, entry *storage.Entry) (id uint64, err error) {
	err = b.db.Update(func(tx *bbolt.Tx) error {
		c, err := getCollection(tx, collection)
		if err != nil {
			return err
		}
		id, err = c.put(entry)
		return err
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return id, nil
}

// Get returns the data of an entry.
func (b *BBolt) Get(collection string, id uint64) (data []byte, err error) {
	err = b.db.View(func(tx *bbolt.Tx) error {
		c, err := getCollection(tx, collection)
		if err != nil {
			return err
		}

		// get value from db
		value := c.records.Get(storage.EncodeID(id))
		if value == nil {
			return storage.ErrNotFound
		}

		// copy data
		data = make([]byte, len(value))
		copy(data, value)
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return data, nil
}

// Scan iterates over all entries of a collection.
func (b *BBolt) Scan(collection string, fn func(id uint64, data []byte) error) error {
	return wrapErr(b.db.View(func(tx *bbolt.Tx) error {
		c, err := getCollection(tx, collection)
		if err != nil {
			return err
		}

		// Iterate over items in sorted key order.
		cursor := c.records.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			id, err := storage.DecodeID(key)
			if err != nil {
				return err
			}
			duplicate := make([]byte, len(value))
			copy(duplicate, value)
			if err := fn(id, duplicate); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ScanIndex iterates over all entries with the given index value.
func (b *BBolt) ScanIndex(collection, index, value string, fn func(id uint64, data []byte) error) error {
	return wrapErr(b.db.View(func(tx *bbolt.Tx) error {
		c, err := getCollection(tx, collection)
		if err != nil {
			return err
		}
		indexBucket := c.bucket.Bucket([]byte(indexBucketPrefix + index))
		if indexBucket == nil {
			return fmt.Errorf("%w: %s.%s", storage.ErrNoIndex, collection, index)
		}

		prefix := storage.IndexPrefix(value)
		cursor := indexBucket.Cursor()
		for key, _ := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, _ = cursor.Next() {
			id, ok := storage.ParseIndexKey(key, value)
			if !ok {
				continue
			}
			data := c.records.Get(storage.EncodeID(id))
			if data == nil {
				continue
			}
			duplicate := make([]byte, len(data))
			copy(duplicate, data)
			if err := fn(id, duplicate); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Delete deletes an entry.
func (b *BBolt) Delete(collection string, id uint64) error {
	return wrapErr(b.db.Update(func(tx *bbolt.Tx) error {
		c, err := getCollection(tx, collection)
		if err != nil {
			return err
		}
		return c.delete(id)
	}))
}

// Clear deletes all entries of a collection.
func (b *BBolt) Clear(collection string) error {
	return wrapErr(b.db.Update(func(tx *bbolt.Tx) error {
		c, err := getCollection(tx, collection)
		if err != nil {
			return err
		}
		return c.clear()
	}))
}

// Close closes the database.
func (b *BBolt) Close() (err error) {
	b.closeOnce.Do(func() {
		err = b.db.Close()
	})
	return err
}
