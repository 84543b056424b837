package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ainotebook/notebase/database/record"
	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/metrics"
	"github.com/ainotebook/notebase/utils"
)

const (
	// SchemaVersion is the schema version databases are upgraded to.
	SchemaVersion uint64 = 1

	// NameIndex is the non-unique index on the record name that every
	// collection has.
	NameIndex = "name"

	openKey = "open"
)

// ConnState describes the connection state of a Store.
type ConnState uint8

// Connection states.
const (
	StateUnopened ConnState = iota
	StateOpening
	StateOpen
	StateFailed
)

func (cs ConnState) String() string {
	switch cs {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store gives access to the records of one collection of one database.
type Store struct {
	id         uuid.UUID
	dbName     string
	collection string
	opts       options

	lock       sync.Mutex
	state      ConnState
	conn       *engine
	generation uint64
	opening    singleflight.Group

	// opLock is held for reading by running operations, so that the
	// connection is only released when they are done.
	opLock sync.RWMutex
}

// New returns a store for the given collection of the given database. It
// does not block: the database is opened in the background and reopened by
// the next operation if that fails.
func New(dbName, collection string, opts ...Option) *Store {
	s := &Store{
		id:         uuid.Must(uuid.NewV4()),
		dbName:     dbName,
		collection: collection,
		opts:       defaultOptions(),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}

	// start opening before returning, so that the first operation joins
	result := s.opening.DoChan(openKey, func() (interface{}, error) {
		return s.open(0)
	})
	go func() {
		res := <-result
		if res.Err != nil {
			log.Warningf("database: failed to open %s: %s", s, res.Err)
		}
	}()

	return s
}

// ID returns the unique ID of the store.
func (s *Store) ID() uuid.UUID {
	return s.id
}

// Database returns the name of the database.
func (s *Store) Database() string {
	return s.dbName
}

// Collection returns the name of the collection.
func (s *Store) Collection() string {
	return s.collection
}

// State returns the current connection state.
func (s *Store) State() ConnState {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

func (s *Store) String() string {
	return fmt.Sprintf("%s/%s [%s]", s.dbName, s.collection, s.id.String()[:8])
}

// connect returns the open connection or opens it. Concurrent callers share
// one open attempt. Failures are not cached.
func (s *Store) connect(ctx context.Context) (*engine, error) {
	e, err := s.connectOnce(ctx)
	if errors.Is(err, ErrClosedWhileOpening) {
		// joined an open attempt that started before the store was closed
		return s.connectOnce(ctx)
	}
	return e, err
}

func (s *Store) connectOnce(ctx context.Context) (*engine, error) {
	s.lock.Lock()
	if s.state == StateOpen {
		e := s.conn
		s.lock.Unlock()
		return e, nil
	}
	generation := s.generation
	s.lock.Unlock()

	result := s.opening.DoChan(openKey, func() (interface{}, error) {
		return s.open(generation)
	})
	select {
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*engine), nil //nolint:forcetypeassert // open only returns engines.
	case <-ctx.Done():
		return nil, &ConnectionError{Database: s.dbName, Err: ctx.Err()}
	}
}

// open opens the connection, unless the store was closed after the caller
// saw the given generation.
func (s *Store) open(generation uint64) (interface{}, error) {
	s.lock.Lock()
	switch {
	case s.state == StateOpen:
		e := s.conn
		s.lock.Unlock()
		return e, nil
	case s.generation != generation:
		s.lock.Unlock()
		return nil, &ConnectionError{Database: s.dbName, Err: ErrClosedWhileOpening}
	}
	s.state = StateOpening
	s.lock.Unlock()

	e, err := acquire(s)

	s.lock.Lock()
	if err != nil {
		s.state = StateFailed
		s.lock.Unlock()
		return nil, &ConnectionError{Database: s.dbName, Err: err}
	}
	if s.generation != generation {
		s.state = StateUnopened
		s.lock.Unlock()
		_ = release(s, e)
		return nil, &ConnectionError{Database: s.dbName, Err: ErrClosedWhileOpening}
	}
	s.state = StateOpen
	s.conn = e
	s.lock.Unlock()

	log.Tracef("database: %s connected", s)
	return e, nil
}

// Close releases the connection of the store. The store stays usable and
// reconnects on the next operation.
func (s *Store) Close() error {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.lock.Lock()
	s.generation++
	e := s.conn
	s.conn = nil
	s.state = StateUnopened
	s.lock.Unlock()

	if e == nil {
		return nil
	}
	return release(s, e)
}

// detach drops the connection without releasing it. Must be called with
// enginesLock held.
func (s *Store) detach(e *engine) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.conn == e {
		s.generation++
		s.conn = nil
		s.state = StateUnopened
	}
}

func (s *Store) versionChange() {
	log.Infof("database: closing %s for the deletion of its database", s)
	err := s.Close()
	if err != nil {
		log.Warningf("database: failed to close %s: %s", s, err)
	}
}

// withConnection runs fn with the open storage. The connection is not
// released while fn runs.
func (s *Store) withConnection(ctx context.Context, fn func(db storage.Interface) error) error {
	s.opLock.RLock()
	defer s.opLock.RUnlock()

	e, err := s.connect(ctx)
	if err != nil {
		return err
	}
	return fn(e.storage)
}

func (s *Store) track(op string, start time.Time, err *error) {
	metrics.StoreOp(s.dbName, s.collection, op, *err, start)
}

func (s *Store) readError(op string, err error) error {
	return &ReadError{Database: s.dbName, Collection: s.collection, Op: op, Err: err}
}

func (s *Store) writeError(op string, err error) error {
	return &WriteError{Database: s.dbName, Collection: s.collection, Op: op, Err: err}
}

// encode serializes the record without its ID, which is the storage key.
func (s *Store) encode(r *record.Record) (*storage.Entry, error) {
	stored := *r
	stored.ID = 0
	data, err := stored.Marshal(s.opts.format, s.opts.compression)
	if err != nil {
		return nil, err
	}
	return &storage.Entry{
		ID:    r.ID,
		Data:  data,
		Index: map[string]string{NameIndex: r.Name},
	}, nil
}

func (s *Store) decode(id uint64, data []byte) (*record.Record, error) {
	r, err := record.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse record %d (%s): %w", id, utils.HexPreview(data), err)
	}
	r.ID = id
	return r, nil
}

// Add stores a new record and returns the ID assigned to it. The record
// must not have an ID.
func (s *Store) Add(ctx context.Context, r *record.Record) (id uint64, err error) {
	defer s.track("add", time.Now(), &err)

	if r.ID != 0 {
		return 0, s.writeError("add", record.ErrIDAssigned)
	}
	if err := r.Validate(); err != nil {
		return 0, s.writeError("add", err)
	}

	err = s.withConnection(ctx, func(db storage.Interface) error {
		entry, err := s.encode(r)
		if err != nil {
			return s.writeError("add", err)
		}
		id, err = db.Add(s.collection, entry)
		if err != nil {
			return s.writeError("add", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Tracef("database: %s added record %d", s, id)
	return id, nil
}

// GetByID returns the record with the given ID. A missing record is not an
// error: nil is returned.
func (s *Store) GetByID(ctx context.Context, id uint64) (r *record.Record, err error) {
	defer s.track("get", time.Now(), &err)

	err = s.withConnection(ctx, func(db storage.Interface) error {
		data, err := db.Get(s.collection, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			log.Warningf("database: record %d not found in %s", id, s)
			return nil
		case err != nil:
			return s.readError("get", err)
		}

		r, err = s.decode(id, data)
		if err != nil {
			return s.readError("get", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetAll returns all records of the collection in ascending ID order.
func (s *Store) GetAll(ctx context.Context) (records []*record.Record, err error) {
	defer s.track("get_all", time.Now(), &err)

	records = make([]*record.Record, 0)
	err = s.withConnection(ctx, func(db storage.Interface) error {
		err := db.Scan(s.collection, func(id uint64, data []byte) error {
			r, err := s.decode(id, data)
			if err != nil {
				return err
			}
			records = append(records, r)
			return nil
		})
		if err != nil {
			return s.readError("get all", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetAllByName returns all records with the given name in ascending ID
// order.
func (s *Store) GetAllByName(ctx context.Context, name string) (records []*record.Record, err error) {
	defer s.track("get_by_name", time.Now(), &err)

	records = make([]*record.Record, 0)
	err = s.withConnection(ctx, func(db storage.Interface) error {
		err := db.ScanIndex(s.collection, NameIndex, name, func(id uint64, data []byte) error {
			r, err := s.decode(id, data)
			if err != nil {
				return err
			}
			records = append(records, r)
			return nil
		})
		if err != nil {
			return s.readError("get by name", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Update stores the record, replacing any record with the same ID. Records
// without ID are stored with a new ID. The ID written is returned.
func (s *Store) Update(ctx context.Context, r *record.Record) (id uint64, err error) {
	defer s.track("update", time.Now(), &err)

	if err := r.Validate(); err != nil {
		return 0, s.writeError("update", err)
	}

	err = s.withConnection(ctx, func(db storage.Interface) error {
		entry, err := s.encode(r)
		if err != nil {
			return s.writeError("update", err)
		}
		id, err = db.Put(s.collection, entry)
		if err != nil {
			return s.writeError("update", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Tracef("database: %s updated record %d", s, id)
	return id, nil
}

// Delete deletes the record with the given ID. Deleting a missing record
// is not an error.
func (s *Store) Delete(ctx context.Context, id uint64) (err error) {
	defer s.track("delete", time.Now(), &err)

	err = s.withConnection(ctx, func(db storage.Interface) error {
		if err := db.Delete(s.collection, id); err != nil {
			return s.writeError("delete", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Tracef("database: %s deleted record %d", s, id)
	return nil
}

// ClearAll deletes all records of the collection.
func (s *Store) ClearAll(ctx context.Context) (err error) {
	defer s.track("clear", time.Now(), &err)

	err = s.withConnection(ctx, func(db storage.Interface) error {
		if err := db.Clear(s.collection); err != nil {
			return s.writeError("clear", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("database: %s cleared", s)
	return nil
}

// Ping opens the connection if needed and checks that the database
// responds.
func (s *Store) Ping(ctx context.Context) (err error) {
	defer s.track("ping", time.Now(), &err)

	return s.withConnection(ctx, func(db storage.Interface) error {
		if _, err := db.Version(); err != nil {
			return s.readError("ping", err)
		}
		return nil
	})
}

// DeleteDatabase closes the store and deletes its whole database. If other
// stores still hold the database open, stores created with
// CloseOnVersionChange are asked to close. ErrBlocked is returned if the
// database is still in use when the blocked timeout elapses or the context
// ends.
func (s *Store) DeleteDatabase(ctx context.Context) (err error) {
	defer s.track("delete_database", time.Now(), &err)

	err = s.Close()
	if err != nil {
		log.Warningf("database: failed to close %s: %s", s, err)
	}

	err = deleteDatabase(ctx, s)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBlocked):
		return err
	default:
		return &DeleteError{Database: s.dbName, Err: err}
	}
}
