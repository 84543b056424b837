package storage

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// A Factory opens or creates a database of its type.
type Factory func(name, location string) (Interface, error)

// A Destroyer removes all data of a database of its type. It is only called
// when no connection to the database is open.
type Destroyer func(name, location string) error

type storageType struct {
	factory   Factory
	destroyer Destroyer
}

var (
	storages     = make(map[string]*storageType)
	storagesLock sync.Mutex

	nameConstraint = regexp.MustCompile("^[A-Za-z0-9_-]+$")
)

// Register registers a new storage type.
func Register(name string, factory Factory, destroyer Destroyer) error {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	_, ok := storages[name]
	if ok {
		return errors.New("factory for this type already exists")
	}

	storages[name] = &storageType{
		factory:   factory,
		destroyer: destroyer,
	}
	return nil
}

func getStorageType(storageType string) (*storageType, error) {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	st, ok := storages[storageType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorageType, storageType)
	}
	return st, nil
}

// StartDatabase opens the database with the given name and storageType at location.
func StartDatabase(name, storageType, location string) (Interface, error) {
	st, err := getStorageType(storageType)
	if err != nil {
		return nil, err
	}
	return st.factory(name, location)
}

// DestroyDatabase removes the database with the given name and storageType at location.
func DestroyDatabase(name, storageType, location string) error {
	st, err := getStorageType(storageType)
	if err != nil {
		return err
	}
	return st.destroyer(name, location)
}

// Types returns the names of all registered storage types.
func Types() []string {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	names := make([]string, 0, len(storages))
	for name := range storages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckName checks if the given collection or index name is valid.
func CheckName(name string) error {
	if !nameConstraint.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
