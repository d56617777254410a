package membership

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/desertthunder/flx/internal/models"
)

// keyGuard serializes operations per key. Waiters are admitted in arrival order.
type keyGuard struct {
	mu    sync.Mutex
	locks map[models.Key]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyGuard() *keyGuard {
	return &keyGuard{locks: make(map[models.Key]*keyLock)}
}

// Acquire blocks until key is free or ctx is done.
func (g *keyGuard) Acquire(ctx context.Context, key models.Key) (release func(), err error) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &keyLock{sem: semaphore.NewWeighted(1)}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		g.unref(key, l)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			g.unref(key, l)
		})
	}, nil
}

func (g *keyGuard) unref(key models.Key, l *keyLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, key)
	}
}

// held reports how many callers hold or wait on key.
func (g *keyGuard) held(key models.Key) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.locks[key]; ok {
		return l.refs
	}
	return 0
}
