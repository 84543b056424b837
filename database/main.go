package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/utils"
)

const databasesSubDir = "databases"

var (
	initialized = abool.New()

	databasesStructure *utils.DirStructure
	settingsLock       sync.RWMutex

	defaultStorageType    = "bbolt"
	defaultBlockedTimeout = 5 * time.Second
)

// Initialize initializes the database system. Databases are stored in the
// "databases" directory of the given structure.
func Initialize(dirStructureRoot *utils.DirStructure) error {
	if !initialized.SetToIf(false, true) {
		return ErrInitialized
	}

	dbStructure := dirStructureRoot.ChildDir(databasesSubDir, utils.AdminOnlyPermission)
	err := dbStructure.Ensure()
	if err != nil {
		initialized.UnSet()
		return fmt.Errorf("could not create/open database directory (%s): %w", dbStructure.Path, err)
	}

	settingsLock.Lock()
	databasesStructure = dbStructure
	settingsLock.Unlock()

	log.Debugf("database: initialized at %s", dbStructure.Path)
	return nil
}

// Shutdown closes all open databases. Stores reopen their database on the
// next operation, if the system is initialized again.
func Shutdown() error {
	enginesLock.Lock()
	defer enginesLock.Unlock()

	var result *multierror.Error
	for name, e := range engines {
		for _, h := range e.handles {
			h.detach(e)
		}
		err := e.storage.Close()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close database %s: %w", name, err))
		}
		delete(engines, name)
	}

	initialized.UnSet()
	releases.Notify()
	return result.ErrorOrNil()
}

// SetDefaultStorageType sets the storage type used by new stores that do
// not specify one.
func SetDefaultStorageType(storageType string) error {
	for _, registered := range storage.Types() {
		if registered == storageType {
			settingsLock.Lock()
			defaultStorageType = storageType
			settingsLock.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", storage.ErrUnknownStorageType, storageType)
}

// DefaultStorageType returns the storage type used by new stores that do
// not specify one.
func DefaultStorageType() string {
	settingsLock.RLock()
	defer settingsLock.RUnlock()

	return defaultStorageType
}

// SetDefaultBlockedTimeout sets how long DeleteDatabase waits for other
// connections to close before it fails with ErrBlocked.
func SetDefaultBlockedTimeout(timeout time.Duration) {
	settingsLock.Lock()
	defer settingsLock.Unlock()

	defaultBlockedTimeout = timeout
}

func getDefaultBlockedTimeout() time.Duration {
	settingsLock.RLock()
	defer settingsLock.RUnlock()

	return defaultBlockedTimeout
}

// getLocation returns the storage location of the database with the given
// name and makes sure it exists.
func getLocation(name string) (string, error) {
	if !initialized.IsSet() {
		return "", ErrNotInitialized
	}

	settingsLock.RLock()
	dbStructure := databasesStructure
	settingsLock.RUnlock()

	location := dbStructure.ChildDir(name, utils.AdminOnlyPermission)
	err := location.Ensure()
	if err != nil {
		return "", fmt.Errorf("location (%s) invalid: %w", location.Path, err)
	}
	return location.Path, nil
}
