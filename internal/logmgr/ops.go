package logmgr

import (
	"context"
	"sync"
)

// opTracker counts in-flight operations so teardown can wait for them.
type opTracker struct {
	mu      sync.Mutex
	n       int
	closing bool
	idle    chan struct{}
}

// begin registers an operation. It fails once drain has started.
func (t *opTracker) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.n++
	return true
}

func (t *opTracker) end() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n < 0 {
		panic("logmgr: operation count below zero")
	}
	if t.n == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

// drain refuses new operations and waits for the running ones.
func (t *opTracker) drain(ctx context.Context) error {
	t.mu.Lock()
	t.closing = true
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	if t.idle == nil {
		t.idle = make(chan struct{})
	}
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *opTracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}
