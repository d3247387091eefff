// Package locksvc provides the core.Locker implementations: in-process & Redis backed.
package locksvc

import (
	"context"
	"sync"

	"github.com/eduplatform/backend/core"
)

type memLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes holders of the same key within a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memLock
}

var _ core.Locker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &memLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, lk, true) })
	}, nil
}

func (l *MemoryLocker) release(key string, lk *memLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
