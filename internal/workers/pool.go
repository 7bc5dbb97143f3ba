// ABOUTME: Bounded executor for storage and hashing work
// ABOUTME: Keeps blocking operations off the caller's goroutine with a fixed concurrency limit

// Package workers runs blocking operations on a bounded pool of goroutines.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool limits how many operations run at once.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most size operations concurrently.
// A size below 1 uses runtime.NumCPU().
func NewPool(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger.With("component", "workers"),
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// Run executes fn on a pool goroutine and waits for its result. Waiting for a
// free slot honours ctx; once fn has started it always runs to completion and
// is expected to observe ctx itself, so an operation is never abandoned
// half-way.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return zero, ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker panic", "panic", r)
				done <- outcome{err: errors.New("worker panic")}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v: v, err: err}
	}()

	out := <-done
	return out.v, out.err
}

// Do is Run for operations without a result.
func Do(ctx context.Context, p *Pool, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Close refuses new work and waits for running work to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("worker pool closed")
}
