// Package locks serializes bid admission per item, in process or across replicas.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
)

var _ bids.Locker = (*KeyedMutex)(nil)

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is one mutex per item id. Entries are dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
	wait  time.Duration
}

// NewKeyedMutex creates a KeyedMutex. Lock gives up after wait; zero waits for as long as ctx allows.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[uuid.UUID]*keyedEntry),
		wait:  wait,
	}
}

// Lock blocks until itemID is held by the caller
func (k *KeyedMutex) Lock(ctx context.Context, itemID uuid.UUID) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[itemID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[itemID] = e
	}
	e.refs++
	k.mu.Unlock()

	var timeout <-chan time.Time
	if k.wait > 0 {
		t := time.NewTimer(k.wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.release(itemID, e)
			})
		}, nil
	case <-ctx.Done():
		k.release(itemID, e)
		return nil, ctx.Err()
	case <-timeout:
		k.release(itemID, e)
		return nil, fmt.Errorf("%w: %s", bids.ErrLockNotAcquired, itemID)
	}
}

func (k *KeyedMutex) release(itemID uuid.UUID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, itemID)
	}
}

// size reports how many items currently have an entry
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
