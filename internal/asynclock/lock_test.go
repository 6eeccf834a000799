package asynclock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	l := New("t")
	if err := l.Lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !l.Held() {
		t.Fatalf("expected held")
	}
	if l.TryLock() {
		t.Fatalf("try lock succeeded while held")
	}
	l.Unlock()
	if l.Held() {
		t.Fatalf("expected released")
	}
	if !l.TryLock() {
		t.Fatalf("try lock failed on free lock")
	}
	l.Unlock()
	if l.Grants() != 2 {
		t.Fatalf("grants: %d", l.Grants())
	}
}

func TestLockHonoursContext(t *testing.T) {
	l := New("t")
	_ = l.Lock(context.Background())
	defer l.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if l.Waiters() != 0 {
		t.Fatalf("waiter not removed: %d", l.Waiters())
	}
}

func TestLockIsFIFO(t *testing.T) {
	l := New("t")
	_ = l.Lock(context.Background())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Lock(context.Background())
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Unlock()
		}(i)
		// let waiter i queue before i+1
		deadline := time.Now().Add(time.Second)
		for l.Waiters() != i+1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(5 * time.Millisecond)
	}
	l.Unlock()
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("grant order %v", order)
		}
	}
}

func TestUnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New("t").Unlock()
}

func TestDoReleasesOnError(t *testing.T) {
	l := New("t")
	boom := errors.New("boom")
	if err := l.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("do: %v", err)
	}
	if l.Held() {
		t.Fatalf("lock leaked")
	}
}
