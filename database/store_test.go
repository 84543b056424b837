package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainotebook/notebase/database/record"
	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/formats/dsd"
	"github.com/ainotebook/notebase/metrics"
)

var storageTypes = []string{"bbolt", "badger", "sqlite", "hashmap"}

func names(records []*record.Record) []string {
	result := make([]string, 0, len(records))
	for _, r := range records {
		result = append(result, r.Name)
	}
	return result
}

func ids(records []*record.Record) []uint64 {
	result := make([]uint64, 0, len(records))
	for _, r := range records {
		result = append(result, r.ID)
	}
	return result
}

// newTestStore returns a store on a database that is deleted when the test
// ends.
func newTestStore(t *testing.T, dbName, storageType string, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{WithStorageType(storageType)}, opts...)
	s := New(dbName, "notes", opts...)
	t.Cleanup(func() {
		assert.NoError(t, s.DeleteDatabase(context.Background()))
	})
	return s
}

func TestStore(t *testing.T) { //nolint:maintidx
	t.Parallel()

	for _, storageType := range storageTypes {
		storageType := storageType
		t.Run(storageType, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			t.Run("RoundTrip", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "roundtrip-"+storageType, storageType)
				r := record.New("shopping", map[string]interface{}{
					"items": []interface{}{"milk", "eggs"},
					"done":  false,
				})
				id, err := s.Add(ctx, r)
				require.NoError(t, err)
				assert.NotZero(t, id)
				assert.Zero(t, r.ID, "add must not modify the record")

				got, err := s.GetByID(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, got)
				expected := &record.Record{ID: id, Name: r.Name, Data: r.Data}
				if diff := cmp.Diff(expected, got); diff != "" {
					t.Errorf("record mismatch (-want +got):\n%s", diff)
				}
				assert.Equal(t, StateOpen, s.State())
			})

			t.Run("Missing", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "missing-"+storageType, storageType)
				got, err := s.GetByID(ctx, 42)
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("GetAll", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "getall-"+storageType, storageType)
				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.NotNil(t, all)
				assert.Empty(t, all)

				const n = 25
				for i := 0; i < n; i++ {
					_, err := s.Add(ctx, record.New(fmt.Sprintf("note-%d", i), nil))
					require.NoError(t, err)
				}
				all, err = s.GetAll(ctx)
				require.NoError(t, err)
				require.Len(t, all, n)
				for i, r := range all {
					assert.Equal(t, uint64(i+1), r.ID)
					assert.Equal(t, fmt.Sprintf("note-%d", i), r.Name)
				}
			})

			t.Run("Update", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "update-"+storageType, storageType)
				id, err := s.Add(ctx, record.New("draft", map[string]interface{}{"text": "hello"}))
				require.NoError(t, err)

				updated := &record.Record{ID: id, Name: "final", Data: map[string]interface{}{"text": "bye"}}
				written, err := s.Update(ctx, updated)
				require.NoError(t, err)
				assert.Equal(t, id, written)

				got, err := s.GetByID(ctx, id)
				require.NoError(t, err)
				if diff := cmp.Diff(updated, got); diff != "" {
					t.Errorf("record mismatch (-want +got):\n%s", diff)
				}
				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 1)

				// put semantics
				newID, err := s.Update(ctx, record.New("fresh", nil))
				require.NoError(t, err)
				assert.Equal(t, id+1, newID)

				written, err = s.Update(ctx, &record.Record{ID: 10, Name: "explicit"})
				require.NoError(t, err)
				assert.Equal(t, uint64(10), written)
				nextID, err := s.Add(ctx, record.New("after", nil))
				require.NoError(t, err)
				assert.Equal(t, uint64(11), nextID)
			})

			t.Run("IDRange", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "idrange-"+storageType, storageType)
				id, err := s.Add(ctx, record.New("first", nil))
				require.NoError(t, err)

				var writeErr *WriteError
				_, err = s.Update(ctx, &record.Record{ID: math.MaxUint64, Name: "huge"})
				require.ErrorAs(t, err, &writeErr)
				assert.ErrorIs(t, err, record.ErrIDOutOfRange)

				// unknown huge ids are just missing
				got, err := s.GetByID(ctx, math.MaxUint64)
				require.NoError(t, err)
				assert.Nil(t, got)
				require.NoError(t, s.Delete(ctx, math.MaxUint64))

				// the generator never wraps around to reuse ids
				_, err = s.Update(ctx, &record.Record{ID: record.MaxID, Name: "last"})
				require.NoError(t, err)
				_, err = s.Add(ctx, record.New("overflow", nil))
				require.ErrorAs(t, err, &writeErr)
				assert.ErrorIs(t, err, storage.ErrIDOutOfRange)

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, []uint64{id, record.MaxID}, ids(all))
				assert.Equal(t, []string{"first", "last"}, names(all))
			})

			t.Run("Delete", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "delete-"+storageType, storageType)
				id, err := s.Add(ctx, record.New("temp", nil))
				require.NoError(t, err)

				require.NoError(t, s.Delete(ctx, id))
				got, err := s.GetByID(ctx, id)
				require.NoError(t, err)
				assert.Nil(t, got)

				// deleting again is fine
				require.NoError(t, s.Delete(ctx, id))
			})

			t.Run("ClearAll", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "clear-"+storageType, storageType)
				for _, name := range []string{"a", "b", "c"} {
					_, err := s.Add(ctx, record.New(name, nil))
					require.NoError(t, err)
				}

				require.NoError(t, s.ClearAll(ctx))
				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)

				// ids are not reused
				id, err := s.Add(ctx, record.New("d", nil))
				require.NoError(t, err)
				assert.Equal(t, uint64(4), id)
			})

			t.Run("GetAllByName", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "byname-"+storageType, storageType)
				for _, name := range []string{"todo", "shopping", "todo"} {
					_, err := s.Add(ctx, record.New(name, nil))
					require.NoError(t, err)
				}

				todos, err := s.GetAllByName(ctx, "todo")
				require.NoError(t, err)
				assert.Equal(t, []uint64{1, 3}, ids(todos))

				_, err = s.Update(ctx, &record.Record{ID: 1, Name: "done"})
				require.NoError(t, err)
				todos, err = s.GetAllByName(ctx, "todo")
				require.NoError(t, err)
				assert.Equal(t, []uint64{3}, ids(todos))

				none, err := s.GetAllByName(ctx, "nothing")
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("Formats", func(t *testing.T) {
				t.Parallel()

				for _, format := range []uint8{dsd.JSON, dsd.CBOR, dsd.MsgPack} {
					for _, compression := range []uint8{dsd.NONE, dsd.GZIP} {
						dbName := fmt.Sprintf("format-%s-%s-%d", storageType, dsd.FormatName(format), compression)
						s := newTestStore(t, dbName, storageType, WithFormat(format), WithCompression(compression))

						r := record.New("formatted", map[string]interface{}{"text": "hello world"})
						id, err := s.Add(ctx, r)
						require.NoError(t, err)
						got, err := s.GetByID(ctx, id)
						require.NoError(t, err)
						require.NotNil(t, got)
						assert.Equal(t, r.Name, got.Name)
						assert.Equal(t, "hello world", got.Data["text"])
					}
				}
			})

			t.Run("Reopen", func(t *testing.T) {
				t.Parallel()

				s := newTestStore(t, "reopen-"+storageType, storageType)
				id, err := s.Add(ctx, record.New("persisted", nil))
				require.NoError(t, err)

				require.NoError(t, s.Close())
				assert.Equal(t, StateUnopened, s.State())

				got, err := s.GetByID(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, "persisted", got.Name)
			})
		})
	}
}

func TestNotesScenario(t *testing.T) {
	// runs the engines one after another, as they share the database name
	ctx := context.Background()

	for _, storageType := range storageTypes {
		t.Run(storageType, func(t *testing.T) {
			notes := New("notes-db", "notes", WithStorageType(storageType))
			defer func() {
				require.NoError(t, notes.DeleteDatabase(ctx))
			}()

			id, err := notes.Add(ctx, record.New("shopping", nil))
			require.NoError(t, err)
			assert.Equal(t, uint64(1), id)

			id, err = notes.Add(ctx, record.New("todo", nil))
			require.NoError(t, err)
			assert.Equal(t, uint64(2), id)

			all, err := notes.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"shopping", "todo"}, names(all))

			require.NoError(t, notes.Delete(ctx, 1))

			all, err = notes.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"todo"}, names(all))
			assert.Equal(t, []uint64{2}, ids(all))
		})
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t, "validation", "hashmap")

	_, err := s.Add(ctx, &record.Record{ID: 3, Name: "has id"})
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, record.ErrIDAssigned)
	assert.Equal(t, "add", writeErr.Op)
	assert.Equal(t, "validation", writeErr.Database)

	_, err = s.Add(ctx, record.New("", nil))
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, record.ErrMissingName)

	_, err = s.Update(ctx, &record.Record{ID: 1})
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, record.ErrMissingName)

	_, err = s.Add(ctx, record.New("unstorable", map[string]interface{}{"fn": func() {}}))
	require.ErrorAs(t, err, &writeErr)
}

func TestConnectionErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("InvalidName", func(t *testing.T) {
		t.Parallel()

		s := New("invalid-name", "no spaces allowed", WithStorageType("hashmap"))
		_, err := s.GetAll(ctx)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "invalid-name", connErr.Database)
		assert.ErrorIs(t, err, storage.ErrInvalidName)
		assert.Equal(t, StateFailed, s.State())
	})

	t.Run("UnknownStorageType", func(t *testing.T) {
		t.Parallel()

		s := New("unknown-type", "notes", WithStorageType("nope"))
		_, err := s.Add(ctx, record.New("a", nil))
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, storage.ErrUnknownStorageType)
	})

	t.Run("VersionTooHigh", func(t *testing.T) {
		t.Parallel()

		location := filepath.Join(testRoot, databasesSubDir, "future-db")
		st, err := storage.StartDatabase("future-db", "hashmap", location)
		require.NoError(t, err)
		require.NoError(t, st.Upgrade(SchemaVersion+1, func(storage.Schema) error { return nil }))
		require.NoError(t, st.Close())
		defer func() { _ = storage.DestroyDatabase("future-db", "hashmap", location) }()

		s := New("future-db", "notes", WithStorageType("hashmap"))
		_, err = s.GetAll(ctx)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, ErrVersionTooHigh)
	})

	t.Run("StorageTypeMismatch", func(t *testing.T) {
		t.Parallel()

		a := newTestStore(t, "mismatch-db", "hashmap")
		_, err := a.GetAll(ctx)
		require.NoError(t, err)

		b := New("mismatch-db", "notes", WithStorageType("bbolt"))
		_, err = b.GetAll(ctx)
		assert.ErrorIs(t, err, ErrStorageTypeMismatch)
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		t.Parallel()

		s := New("slow-db", "notes", WithStorageType("slow"))
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.GetAll(canceled)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, context.Canceled)

		slowUnblockOnce.Do(func() { close(slowUnblock) })
		_, err = s.GetAll(ctx)
		require.NoError(t, err)
		require.NoError(t, s.DeleteDatabase(ctx))
	})
}

func TestFailedOpenIsNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// the eager open and the first operation fail
	atomic.StoreInt32(&flakyFailures, 2)
	s := New("flaky-db", "notes", WithStorageType("flaky"))
	defer func() {
		assert.NoError(t, s.DeleteDatabase(ctx))
	}()

	// the first operation always fails: it either joins the eager open or
	// makes its own attempt
	_, err := s.GetAll(ctx)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, StateFailed, s.State())

	for i := 0; i < 2; i++ {
		_, err = s.GetAll(ctx)
		if err == nil {
			break
		}
		assert.ErrorIs(t, err, errFlaky)
	}
	require.NoError(t, err)

	_, err = s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, s.State())
}

func TestSharedConnection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	before := atomic.LoadInt32(&countingOpens)

	s := New("shared-db", "notes", WithStorageType("counting"))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetAll(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// a second collection in the same database shares the connection
	other := New("shared-db", "tags", WithStorageType("counting"))
	_, err := other.Add(ctx, record.New("important", nil))
	require.NoError(t, err)
	assert.Equal(t, before+1, atomic.LoadInt32(&countingOpens))

	// collections are separate
	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// the connection stays open until the last store closes
	require.NoError(t, other.Close())
	_, err = s.Add(ctx, record.New("still open", nil))
	require.NoError(t, err)

	require.NoError(t, s.DeleteDatabase(ctx))
}

func TestDeleteDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner := New("blocked-db", "notes", WithStorageType("hashmap"), WithBlockedTimeout(100*time.Millisecond))
	_, err := owner.Add(ctx, record.New("keep me", nil))
	require.NoError(t, err)

	// another store holds the database open
	holder := New("blocked-db", "notes", WithStorageType("hashmap"))
	_, err = holder.GetAll(ctx)
	require.NoError(t, err)

	err = owner.DeleteDatabase(ctx)
	assert.True(t, errors.Is(err, ErrBlocked), "expected ErrBlocked, got %v", err)

	// stores that close on version change do not block
	require.NoError(t, holder.Close())
	polite := New("blocked-db", "notes", WithStorageType("hashmap"), CloseOnVersionChange())
	_, err = polite.GetAll(ctx)
	require.NoError(t, err)

	require.NoError(t, owner.DeleteDatabase(ctx))
	assert.Equal(t, StateUnopened, polite.State())

	// the database is recreated empty on the next use
	all, err := owner.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	require.NoError(t, owner.DeleteDatabase(ctx))
}

func TestDeleteDatabaseContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner := New("ctx-blocked-db", "notes", WithStorageType("hashmap"), WithBlockedTimeout(0))
	holder := New("ctx-blocked-db", "notes", WithStorageType("hashmap"))
	_, err := holder.GetAll(ctx)
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = owner.DeleteDatabase(timeoutCtx)
	assert.ErrorIs(t, err, ErrBlocked)

	require.NoError(t, holder.Close())
	require.NoError(t, owner.DeleteDatabase(ctx))
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t, "metrics-db", "hashmap")
	before := metrics.StoreOpCount("metrics-db", "notes", "add", metrics.ResultOK)

	_, err := s.Add(ctx, record.New("counted", nil))
	require.NoError(t, err)
	_, err = s.Add(ctx, record.New("", nil))
	require.Error(t, err)

	assert.Equal(t, before+1, metrics.StoreOpCount("metrics-db", "notes", "add", metrics.ResultOK))
	assert.Equal(t, uint64(1), metrics.StoreOpCount("metrics-db", "notes", "add", metrics.ResultError))
}

func TestMaintain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t, "maintain-db", "badger")
	_, err := s.Add(ctx, record.New("a", nil))
	require.NoError(t, err)

	assert.NoError(t, Maintain())
}

func TestPing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t, "ping-db", "hashmap")
	require.NoError(t, s.Ping(ctx))
	assert.Equal(t, StateOpen, s.State())

	broken := New("ping-db", "no spaces allowed", WithStorageType("hashmap"))
	var connErr *ConnectionError
	assert.ErrorAs(t, broken.Ping(ctx), &connErr)
}
