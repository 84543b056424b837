package utils

import (
	"sync"
)

// Broadcaster wakes up everyone waiting on it whenever Notify is called.
type Broadcaster struct {
	lock   sync.Mutex
	signal chan struct{}
}

// NewBroadcaster returns a new Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		signal: make(chan struct{}),
	}
}

// Wait returns a channel that is closed by the next call to Notify. Get the
// channel before checking the condition you wait for, so that no
// notification is missed in between.
func (b *Broadcaster) Wait() <-chan struct{} {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.signal
}

// Notify wakes up all current waiters.
func (b *Broadcaster) Notify() {
	b.lock.Lock()
	defer b.lock.Unlock()

	close(b.signal)
	b.signal = make(chan struct{})
}
