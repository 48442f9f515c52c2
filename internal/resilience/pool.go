package resilience

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrPoolBusy is returned by TryRun when every slot is taken.
var ErrPoolBusy = errors.New("worker pool is busy")

// Pool bounds how many webhook deliveries are processed at once.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent runs.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is cancelled while waiting for a slot.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func(context.Context) error) error {
	if p == nil || p.sem == nil {
		return fn(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// TryRun runs fn only if a slot is free right now.
func (p *Pool) TryRun(ctx context.Context, fn func(context.Context) error) error {
	if p == nil || p.sem == nil {
		return fn(ctx)
	}
	if !p.sem.TryAcquire(1) {
		return ErrPoolBusy
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
