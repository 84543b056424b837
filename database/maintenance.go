package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/log"
)

// Maintain runs the maintenance of all open databases that support it.
func Maintain() error {
	enginesLock.Lock()
	defer enginesLock.Unlock()

	var result *multierror.Error
	for name, e := range engines {
		maintainer, ok := e.storage.(storage.Maintainer)
		if !ok {
			continue
		}
		err := maintainer.Maintain()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to maintain database %s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// StartMaintainer runs Maintain in the given interval until the context is
// canceled.
func StartMaintainer(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				err := Maintain()
				if err != nil {
					log.Errorf("database: maintenance failed: %s", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
