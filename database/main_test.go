package database

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ainotebook/notebase/database/storage"
	_ "github.com/ainotebook/notebase/database/storage/badger"
	_ "github.com/ainotebook/notebase/database/storage/bbolt"
	"github.com/ainotebook/notebase/database/storage/hashmap"
	_ "github.com/ainotebook/notebase/database/storage/sqlite"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/utils"
)

var (
	testRoot string

	errFlaky = errors.New("flaky storage failed to open")

	flakyFailures int32
	countingOpens int32

	slowUnblock     = make(chan struct{})
	slowUnblockOnce sync.Once
)

func init() {
	// flaky fails to open as long as flakyFailures is above zero
	_ = storage.Register("flaky", func(name, location string) (storage.Interface, error) {
		if atomic.AddInt32(&flakyFailures, -1) >= 0 {
			return nil, errFlaky
		}
		return hashmap.NewHashMap(name, location)
	}, hashmap.DestroyHashMap)

	// counting counts how often it was opened
	_ = storage.Register("counting", func(name, location string) (storage.Interface, error) {
		atomic.AddInt32(&countingOpens, 1)
		return hashmap.NewHashMap(name, location)
	}, hashmap.DestroyHashMap)

	// slow only opens after slowUnblock is closed
	_ = storage.Register("slow", func(name, location string) (storage.Interface, error) {
		<-slowUnblock
		return hashmap.NewHashMap(name, location)
	}, hashmap.DestroyHashMap)
}

func TestMain(m *testing.M) {
	// setup
	var err error
	testRoot, err = os.MkdirTemp("", "notebase-database-")
	if err != nil {
		fmt.Printf("failed to create temp dir: %s\n", err)
		os.Exit(1)
	}

	log.SetLogLevel(log.WarningLevel)
	err = log.Start()
	if err != nil {
		fmt.Printf("failed to start logging: %s\n", err)
		os.Exit(1)
	}

	err = Initialize(utils.NewDirStructure(testRoot, utils.PublicReadPermission))
	if err != nil {
		fmt.Printf("failed to initialize database: %s\n", err)
		os.Exit(1)
	}

	// run tests
	exitCode := m.Run()

	// teardown
	err = Shutdown()
	if err != nil {
		fmt.Printf("failed to shut down database: %s\n", err)
		exitCode = 1
	}
	log.Shutdown()
	_ = os.RemoveAll(testRoot)

	os.Exit(exitCode)
}
