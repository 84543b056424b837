package dataroot

import (
	"errors"
	"os"
	"sync"

	"github.com/ainotebook/notebase/utils"
)

// Common errors.
var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotSet             = errors.New("data root is not set")
)

var (
	root     *utils.DirStructure
	rootLock sync.Mutex
)

// Initialize initializes the data root directory.
func Initialize(rootDir string, perm os.FileMode) error {
	rootLock.Lock()
	defer rootLock.Unlock()

	if root != nil {
		return ErrAlreadyInitialized
	}

	newRoot := utils.NewDirStructure(rootDir, perm)
	if err := newRoot.Ensure(); err != nil {
		return err
	}
	root = newRoot
	return nil
}

// Root returns the data root directory.
func Root() (*utils.DirStructure, error) {
	rootLock.Lock()
	defer rootLock.Unlock()

	if root == nil {
		return nil, ErrNotSet
	}
	return root, nil
}
