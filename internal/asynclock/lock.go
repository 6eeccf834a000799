// Package asynclock provides a FIFO, context-aware mutual exclusion lock.
//
// Unlike sync.Mutex a waiter can give up when its context is done, and
// waiters are granted the lock in arrival order. Ownership is a token: the
// goroutine that acquired the lock may hand the token to another goroutine
// which then releases it.
package asynclock

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Lock is a single-owner FIFO lock. The zero value is not usable; call New.
type Lock struct {
	sem     *semaphore.Weighted
	name    string
	held    atomic.Bool
	waiters atomic.Int64
	grants  atomic.Uint64
}

// New returns an unlocked Lock. name is used in panics and diagnostics.
func New(name string) *Lock {
	return &Lock{sem: semaphore.NewWeighted(1), name: name}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	l.waiters.Add(1)
	err := l.sem.Acquire(ctx, 1)
	l.waiters.Add(-1)
	if err != nil {
		return err
	}
	l.held.Store(true)
	l.grants.Add(1)
	return nil
}

// TryLock acquires the lock only if it is free and nobody is queued.
func (l *Lock) TryLock() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.held.Store(true)
	l.grants.Add(1)
	return true
}

// Unlock releases the lock. Releasing an unheld lock panics.
func (l *Lock) Unlock() {
	if !l.held.CompareAndSwap(true, false) {
		panic("asynclock: unlock of unlocked " + l.name)
	}
	l.sem.Release(1)
}

// Held reports whether the lock is currently owned.
func (l *Lock) Held() bool { return l.held.Load() }

// Waiters is the number of callers queued in Lock.
func (l *Lock) Waiters() int { return int(l.waiters.Load()) }

// Grants is the number of times the lock has been acquired.
func (l *Lock) Grants() uint64 { return l.grants.Load() }

// Name returns the diagnostic name.
func (l *Lock) Name() string { return l.name }

// Do runs fn while holding the lock.
func (l *Lock) Do(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}
