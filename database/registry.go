package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/utils"
)

// engine is an open storage shared by all stores of the same database.
type engine struct {
	name        string
	storageType string
	location    string
	storage     storage.Interface

	handles     map[uuid.UUID]*Store
	collections map[string]struct{}
}

var (
	engines     = make(map[string]*engine)
	enginesLock sync.Mutex

	// releases is notified whenever a store releases its connection.
	releases = utils.NewBroadcaster()
)

// acquire returns the engine of the store's database and registers the
// store as a user. The database is opened and upgraded if necessary.
func acquire(s *Store) (*engine, error) {
	if err := storage.CheckName(s.dbName); err != nil {
		return nil, err
	}
	if err := storage.CheckName(s.collection); err != nil {
		return nil, err
	}

	enginesLock.Lock()
	defer enginesLock.Unlock()

	e, ok := engines[s.dbName]
	switch {
	case !ok:
		location, err := getLocation(s.dbName)
		if err != nil {
			return nil, err
		}
		st, err := storage.StartDatabase(s.dbName, s.opts.storageType, location)
		if err != nil {
			return nil, err
		}
		e = &engine{
			name:        s.dbName,
			storageType: s.opts.storageType,
			location:    location,
			storage:     st,
			handles:     make(map[uuid.UUID]*Store),
			collections: make(map[string]struct{}),
		}
		log.Debugf("database: opened %s (%s) at %s", e.name, e.storageType, e.location)
	case e.storageType != s.opts.storageType:
		return nil, fmt.Errorf("%w: %s is open as %s", ErrStorageTypeMismatch, e.name, e.storageType)
	}

	if _, ok := e.collections[s.collection]; !ok {
		err := upgrade(e, s.collection)
		if err != nil {
			if len(e.handles) == 0 {
				_ = e.storage.Close()
				delete(engines, e.name)
			}
			return nil, err
		}
		e.collections[s.collection] = struct{}{}
	}

	engines[e.name] = e
	e.handles[s.id] = s
	return e, nil
}

// upgrade brings the database to the current schema version and makes sure
// the collection exists.
func upgrade(e *engine, collection string) error {
	version, err := e.storage.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: %s has version %d, supported is %d", ErrVersionTooHigh, e.name, version, SchemaVersion)
	}
	if version < SchemaVersion {
		log.Infof("database: upgrading %s from version %d to %d", e.name, version, SchemaVersion)
	}

	return e.storage.Upgrade(SchemaVersion, func(schema storage.Schema) error {
		exists, err := schema.HasCollection(collection)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		log.Infof("database: creating collection %s in %s", collection, e.name)
		err = schema.CreateCollection(collection)
		if err != nil {
			return err
		}
		return schema.CreateIndex(collection, NameIndex, false)
	})
}

// release unregisters the store from the engine and closes the engine when
// it was the last user.
func release(s *Store, e *engine) error {
	enginesLock.Lock()
	defer enginesLock.Unlock()

	var err error
	delete(e.handles, s.id)
	if len(e.handles) == 0 && engines[e.name] == e {
		err = e.storage.Close()
		delete(engines, e.name)
		log.Debugf("database: closed %s", e.name)
	}

	releases.Notify()
	return err
}

// deleteDatabase deletes the database of the store as soon as no other
// store holds a connection to it.
func deleteDatabase(ctx context.Context, s *Store) error {
	var timeout <-chan time.Time
	if s.opts.blockedTimeout > 0 {
		timer := time.NewTimer(s.opts.blockedTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	notified := false
	for {
		released := releases.Wait()

		enginesLock.Lock()
		e, open := engines[s.dbName]
		if !open {
			err := destroy(s)
			enginesLock.Unlock()
			return err
		}
		handles := make([]*Store, 0, len(e.handles))
		for _, h := range e.handles {
			handles = append(handles, h)
		}
		enginesLock.Unlock()

		if !notified {
			log.Warningf("database: deletion of %s is blocked by %d open connection(s)", s.dbName, len(handles))
			for _, h := range handles {
				if h.opts.closeOnVersionChange {
					go h.versionChange()
				}
			}
			notified = true
		}

		select {
		case <-released:
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrBlocked, ctx.Err())
		case <-timeout:
			return ErrBlocked
		}
	}
}

// destroy removes all data of the database. Must be called with enginesLock
// held.
func destroy(s *Store) error {
	location, err := getLocation(s.dbName)
	if err != nil {
		return err
	}
	err = storage.DestroyDatabase(s.dbName, s.opts.storageType, location)
	if err != nil {
		return err
	}
	log.Infof("database: deleted %s", s.dbName)
	return nil
}
