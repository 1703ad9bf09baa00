package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// EntityLocks serialises work on one budget, rule or goal. Different ids
// never contend. Entries are dropped once no goroutine holds or waits on them.
type EntityLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entityLock
}

type entityLock struct {
	sem  chan struct{}
	refs int
}

func NewEntityLocks() *EntityLocks {
	return &EntityLocks{locks: make(map[uuid.UUID]*entityLock)}
}

// Lock blocks until id is free or ctx is done. The returned func releases it.
func (l *EntityLocks) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	el, ok := l.locks[id]
	if !ok {
		el = &entityLock{sem: make(chan struct{}, 1)}
		l.locks[id] = el
	}
	el.refs++
	l.mu.Unlock()

	select {
	case el.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id, el)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-el.sem
			l.release(id, el)
		})
	}, nil
}

func (l *EntityLocks) release(id uuid.UUID, el *entityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el.refs--
	if el.refs == 0 {
		delete(l.locks, id)
	}
}

// Len reports how many ids are currently tracked.
func (l *EntityLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
