// Package lock serializes writes to one canonical ID.
//
// The consolidation core never locks on its own: it assumes one writer per
// ID at a time. Importers that run concurrently over overlapping sources wrap
// each read-merge-write in a Locker:
//
//	unlock, err := locker.Lock(ctx, id)
//	if err != nil {
//	    return err
//	}
//	defer unlock(ctx)
package lock

import (
	"context"
	"sync"

	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "lock"

// Unlock releases a held lock. Calling it more than once is harmless.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive per-ID locks.
type Locker interface {
	// Lock blocks until id is held or ctx is done. A done context surfaces
	// as a thingerr.CodeStorage error.
	Lock(ctx context.Context, id string) (Unlock, error)

	// Close releases resources held by the locker.
	Close() error
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewLocal creates an empty Local locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

var _ Locker = (*Local)(nil)

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, id string) (Unlock, error) {
	l.mu.Lock()
	e := l.entries[id]
	if e == nil {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, e)
		return nil, thingerr.Storage(component, "lock", ctx.Err())
	}

	return once(func(context.Context) error {
		<-e.ch
		l.release(id, e)
		return nil
	}), nil
}

// once makes release run at most one time. Later calls return the first
// call's error.
func once(release Unlock) Unlock {
	var (
		o   sync.Once
		err error
	)
	return func(ctx context.Context) error {
		o.Do(func() {
			err = release(ctx)
		})
		return err
	}
}

func (l *Local) release(id string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// Len returns the number of IDs currently held or waited on.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close implements Locker.
func (l *Local) Close() error {
	return nil
}
