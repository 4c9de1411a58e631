package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_boundedConcurrency(t *testing.T) {
	const size = 2
	const jobs = 10

	pool := New(size)

	var running, peak int64
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func() error {
				n := atomic.AddInt64(&running, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > size {
		t.Errorf("observed %d concurrent jobs, pool size is %d", got, size)
	}
}

func TestDo_returnsFnError(t *testing.T) {
	pool := New(1)
	want := errors.New("decode failed")
	if err := pool.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestDo_canceledWhileWaiting(t *testing.T) {
	pool := New(1)

	release := make(chan struct{})
	occupied := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Do(ctx, func() error {
		t.Error("fn must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNew_defaultSize(t *testing.T) {
	pool := New(0)
	if pool == nil || pool.sem == nil {
		t.Fatal("pool not initialized")
	}
	// DefaultSize slots must be acquirable without blocking.
	for i := 0; i < DefaultSize; i++ {
		if !pool.sem.TryAcquire(1) {
			t.Fatalf("slot %d not available", i)
		}
	}
	if pool.sem.TryAcquire(1) {
		t.Errorf("pool admits more than %d concurrent jobs", DefaultSize)
	}
}
