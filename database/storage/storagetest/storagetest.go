// Package storagetest provides a test suite that every storage engine must
// pass.
package storagetest

import (
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainotebook/notebase/database/storage"
)

const (
	testCollection = "notes"
	testIndex      = "name"
)

type scanned struct {
	ID   uint64
	Data string
}

func collect(t *testing.T, scan func(fn func(id uint64, data []byte) error) error) []scanned {
	t.Helper()

	var result []scanned
	err := scan(func(id uint64, data []byte) error {
		result = append(result, scanned{ID: id, Data: string(data)})
		return nil
	})
	require.NoError(t, err)
	return result
}

func entry(name, data string) *storage.Entry {
	return &storage.Entry{
		Data:  []byte(data),
		Index: map[string]string{testIndex: name},
	}
}

func open(t *testing.T, storageType, location string) storage.Interface {
	t.Helper()

	db, err := storage.StartDatabase("test", storageType, location)
	require.NoError(t, err)
	return db
}

func setup(t *testing.T, db storage.Interface) {
	t.Helper()

	err := db.Upgrade(1, func(s storage.Schema) error {
		if err := s.CreateCollection(testCollection); err != nil {
			return err
		}
		return s.CreateIndex(testCollection, testIndex, false)
	})
	require.NoError(t, err)
}

// Run runs the storage test suite against the registered storage type.
func Run(t *testing.T, storageType string) { //nolint:maintidx
	t.Helper()

	newLocation := func(t *testing.T) string {
		t.Helper()
		return filepath.Join(t.TempDir(), "databases", "test")
	}

	t.Run("Version", func(t *testing.T) {
		t.Parallel()

		location := newLocation(t)
		db := open(t, storageType, location)

		version, err := db.Version()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), version)

		setup(t, db)
		version, err = db.Version()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), version)

		// version is persisted
		require.NoError(t, db.Close())
		db = open(t, storageType, location)
		defer func() { _ = db.Close() }()
		version, err = db.Version()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), version)
	})

	t.Run("FailedUpgrade", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()

		failure := fmt.Errorf("upgrade failed")
		err := db.Upgrade(1, func(s storage.Schema) error {
			if err := s.CreateCollection(testCollection); err != nil {
				return err
			}
			return failure
		})
		assert.ErrorIs(t, err, failure)

		version, err := db.Version()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), version)

		// the collection was not created
		err = db.Upgrade(1, func(s storage.Schema) error {
			exists, err := s.HasCollection(testCollection)
			if err != nil {
				return err
			}
			assert.False(t, exists)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Schema", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()
		setup(t, db)

		err := db.Upgrade(2, func(s storage.Schema) error {
			exists, err := s.HasCollection(testCollection)
			require.NoError(t, err)
			assert.True(t, exists)

			assert.ErrorIs(t, s.CreateCollection(testCollection), storage.ErrCollectionExists)
			assert.ErrorIs(t, s.CreateIndex(testCollection, testIndex, false), storage.ErrIndexExists)
			assert.ErrorIs(t, s.CreateIndex("missing", testIndex, false), storage.ErrNoCollection)
			assert.ErrorIs(t, s.CreateCollection("no spaces"), storage.ErrInvalidName)
			return nil
		})
		require.NoError(t, err)

		_, err = db.Add("missing", entry("a", "a"))
		assert.ErrorIs(t, err, storage.ErrNoCollection)
		_, err = db.Get("missing", 1)
		assert.ErrorIs(t, err, storage.ErrNoCollection)
	})

	t.Run("CRUD", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()
		setup(t, db)

		// add
		id1, err := db.Add(testCollection, entry("shopping", "milk"))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id1)
		id2, err := db.Add(testCollection, entry("todo", "laundry"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), id2)

		_, err = db.Add(testCollection, &storage.Entry{ID: 5, Data: []byte("x")})
		assert.ErrorIs(t, err, storage.ErrIDAssigned)

		// get
		data, err := db.Get(testCollection, id1)
		require.NoError(t, err)
		assert.Equal(t, "milk", string(data))
		_, err = db.Get(testCollection, 42)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// put replaces
		e := entry("shopping", "eggs")
		e.ID = id1
		id, err := db.Put(testCollection, e)
		require.NoError(t, err)
		assert.Equal(t, id1, id)
		data, err = db.Get(testCollection, id1)
		require.NoError(t, err)
		assert.Equal(t, "eggs", string(data))

		// scan
		assert.Equal(t, []scanned{
			{ID: 1, Data: "eggs"},
			{ID: 2, Data: "laundry"},
		}, collect(t, func(fn func(uint64, []byte) error) error {
			return db.Scan(testCollection, fn)
		}))

		// delete
		require.NoError(t, db.Delete(testCollection, id1))
		_, err = db.Get(testCollection, id1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, db.Delete(testCollection, id1))
		assert.Equal(t, []scanned{
			{ID: 2, Data: "laundry"},
		}, collect(t, func(fn func(uint64, []byte) error) error {
			return db.Scan(testCollection, fn)
		}))
	})

	t.Run("KeyGenerator", func(t *testing.T) {
		t.Parallel()

		location := newLocation(t)
		db := open(t, storageType, location)
		setup(t, db)

		id, err := db.Add(testCollection, entry("a", "a"))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)

		// put without id uses the generator
		id, err = db.Put(testCollection, entry("b", "b"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), id)

		// explicit higher id advances the generator
		e := entry("c", "c")
		e.ID = 10
		id, err = db.Put(testCollection, e)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), id)
		id, err = db.Add(testCollection, entry("d", "d"))
		require.NoError(t, err)
		assert.Equal(t, uint64(11), id)

		// ids are not reused after delete and clear
		require.NoError(t, db.Delete(testCollection, 11))
		require.NoError(t, db.Clear(testCollection))
		assert.Empty(t, collect(t, func(fn func(uint64, []byte) error) error {
			return db.Scan(testCollection, fn)
		}))
		id, err = db.Add(testCollection, entry("e", "e"))
		require.NoError(t, err)
		assert.Equal(t, uint64(12), id)

		// generator is persisted
		require.NoError(t, db.Close())
		db = open(t, storageType, location)
		defer func() { _ = db.Close() }()
		id, err = db.Add(testCollection, entry("f", "f"))
		require.NoError(t, err)
		assert.Equal(t, uint64(13), id)
	})

	t.Run("IDRange", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()
		setup(t, db)

		// ids beyond the range are never stored
		e := entry("a", "a")
		e.ID = storage.MaxID + 1
		_, err := db.Put(testCollection, e)
		assert.ErrorIs(t, err, storage.ErrIDOutOfRange)
		e.ID = math.MaxUint64
		_, err = db.Put(testCollection, e)
		assert.ErrorIs(t, err, storage.ErrIDOutOfRange)

		// and never found
		_, err = db.Get(testCollection, math.MaxUint64)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, db.Delete(testCollection, math.MaxUint64))
		_, err = db.Get("missing", math.MaxUint64)
		assert.ErrorIs(t, err, storage.ErrNoCollection)

		// the highest id is valid, but exhausts the generator
		e = entry("b", "b")
		e.ID = storage.MaxID
		id, err := db.Put(testCollection, e)
		require.NoError(t, err)
		assert.Equal(t, storage.MaxID, id)
		_, err = db.Add(testCollection, entry("c", "c"))
		assert.ErrorIs(t, err, storage.ErrIDOutOfRange)
		_, err = db.Put(testCollection, entry("d", "d"))
		assert.ErrorIs(t, err, storage.ErrIDOutOfRange)

		// explicit ids below still work
		e = entry("e", "e")
		e.ID = 5
		_, err = db.Put(testCollection, e)
		require.NoError(t, err)

		assert.Equal(t, []scanned{
			{ID: 5, Data: "e"},
			{ID: storage.MaxID, Data: "b"},
		}, collect(t, func(fn func(uint64, []byte) error) error {
			return db.Scan(testCollection, fn)
		}))
	})

	t.Run("Index", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()
		setup(t, db)

		for _, e := range []*storage.Entry{
			entry("todo", "laundry"),
			entry("shopping", "milk"),
			entry("todo", "dishes"),
			{Data: []byte("unnamed")},
		} {
			_, err := db.Add(testCollection, e)
			require.NoError(t, err)
		}

		scanIndex := func(value string) []scanned {
			return collect(t, func(fn func(uint64, []byte) error) error {
				return db.ScanIndex(testCollection, testIndex, value, fn)
			})
		}

		assert.Equal(t, []scanned{
			{ID: 1, Data: "laundry"},
			{ID: 3, Data: "dishes"},
		}, scanIndex("todo"))
		assert.Empty(t, scanIndex("tod"))

		// index follows updates
		e := entry("shopping", "bread")
		e.ID = 1
		_, err := db.Put(testCollection, e)
		require.NoError(t, err)
		assert.Equal(t, []scanned{
			{ID: 1, Data: "bread"},
			{ID: 2, Data: "milk"},
		}, scanIndex("shopping"))
		assert.Equal(t, []scanned{
			{ID: 3, Data: "dishes"},
		}, scanIndex("todo"))

		// and deletes
		require.NoError(t, db.Delete(testCollection, 3))
		assert.Empty(t, scanIndex("todo"))

		// and clears
		require.NoError(t, db.Clear(testCollection))
		assert.Empty(t, scanIndex("shopping"))

		err = db.ScanIndex(testCollection, "missing", "x", func(uint64, []byte) error { return nil })
		assert.ErrorIs(t, err, storage.ErrNoIndex)
	})

	t.Run("UniqueIndex", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()
		setup(t, db)

		_, err := db.Add(testCollection, &storage.Entry{
			Data:  []byte("a"),
			Index: map[string]string{testIndex: "a", "slug": "a"},
		})
		require.NoError(t, err)

		// new index picks up existing entries
		err = db.Upgrade(2, func(s storage.Schema) error {
			return s.CreateIndex(testCollection, "slug", true)
		})
		require.NoError(t, err)
		assert.Len(t, collect(t, func(fn func(uint64, []byte) error) error {
			return db.ScanIndex(testCollection, "slug", "a", fn)
		}), 1)

		_, err = db.Add(testCollection, &storage.Entry{
			Data:  []byte("b"),
			Index: map[string]string{testIndex: "a", "slug": "a"},
		})
		assert.ErrorIs(t, err, storage.ErrConstraint)

		// entry may keep its own value
		_, err = db.Put(testCollection, &storage.Entry{
			ID:    1,
			Data:  []byte("a2"),
			Index: map[string]string{testIndex: "a", "slug": "a"},
		})
		require.NoError(t, err)
	})

	t.Run("Concurrency", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		defer func() { _ = db.Close() }()
		setup(t, db)

		const workers, adds = 5, 20
		var wg sync.WaitGroup
		ids := make(chan uint64, workers*adds)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for j := 0; j < adds; j++ {
					id, err := db.Add(testCollection, entry(fmt.Sprintf("w%d", worker), "x"))
					if !assert.NoError(t, err) {
						return
					}
					ids <- id
				}
			}(i)
		}
		wg.Wait()
		close(ids)

		seen := make(map[uint64]struct{})
		for id := range ids {
			_, dup := seen[id]
			assert.False(t, dup, "duplicate id %d", id)
			seen[id] = struct{}{}
		}
		assert.Len(t, seen, workers*adds)
	})

	t.Run("Close", func(t *testing.T) {
		t.Parallel()

		db := open(t, storageType, newLocation(t))
		setup(t, db)

		require.NoError(t, db.Close())
		require.NoError(t, db.Close())

		_, err := db.Get(testCollection, 1)
		assert.Error(t, err)
	})

	t.Run("Destroy", func(t *testing.T) {
		t.Parallel()

		location := newLocation(t)
		db := open(t, storageType, location)
		setup(t, db)
		_, err := db.Add(testCollection, entry("a", "a"))
		require.NoError(t, err)
		require.NoError(t, db.Close())

		require.NoError(t, storage.DestroyDatabase("test", storageType, location))

		db = open(t, storageType, location)
		defer func() { _ = db.Close() }()
		version, err := db.Version()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), version)
	})
}
