// Package workpool bounds the number of blocking decode and archive
// operations running at once so they never starve the request loop.
package workpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the worker count used when none is configured.
const DefaultSize = 4

// Pool is a bounded worker pool. Do blocks until a slot is free or the
// context is done.
type Pool struct {
	sem *semaphore.Weighted
}

// New returns a Pool admitting at most size concurrent calls.
// If size <= 0, DefaultSize is used.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn once a slot is available. A canceled context while
// waiting returns the context error; fn itself is never interrupted
// once started.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
