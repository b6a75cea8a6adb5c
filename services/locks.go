package services

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serialises work per entity while leaving different keys fully
// parallel. Entries are dropped once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Row locks taken inside the transactions give the same guarantee across
// instances; these keep one process from queueing on the database.
var entityLocks = newKeyedMutex()

func lockDonation(id uuid.UUID) func()    { return entityLocks.Lock("donation:" + id.String()) }
func lockCampaign(id uuid.UUID) func()    { return entityLocks.Lock("campaign:" + id.String()) }
func lockChainer(id uuid.UUID) func()     { return entityLocks.Lock("chainer:" + id.String()) }
func lockPayoutBalance(key string) func() { return entityLocks.Lock("balance:" + key) }
