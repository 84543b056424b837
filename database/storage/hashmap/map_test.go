package hashmap

import (
	"testing"

	"github.com/ainotebook/notebase/database/storage/storagetest"
)

func TestHashMap(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, "hashmap")
}
