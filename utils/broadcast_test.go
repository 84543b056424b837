package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	first := b.Wait()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-first
		}()
	}

	select {
	case <-first:
		t.Fatal("signal fired without notification")
	default:
	}

	b.Notify()
	wg.Wait()

	// waiters after the notification wait for the next one
	second := b.Wait()
	select {
	case <-second:
		t.Fatal("new signal fired without notification")
	case <-time.After(10 * time.Millisecond):
	}
	b.Notify()
	<-second
	assert.NotEqual(t, second, b.Wait())
}
