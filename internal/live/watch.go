// ABOUTME: Watch runs a read query as a self-refreshing subscription
// ABOUTME: Emits Loading, then Success per change, or one final Error

package live

import (
	"context"
	"fmt"

	"github.com/2389/bugbook/internal/result"
	"github.com/2389/bugbook/internal/store"
)

// Query describes a read and the tables whose changes invalidate it.
type Query[T any] struct {
	Name   string // used in error messages and logs
	Tables []store.Table
	Read   func(ctx context.Context) (T, error)
}

// Watch subscribes to q and returns its stream of states. The subscription is
// registered before Watch returns, so any write committed afterwards is
// reflected. The channel is closed after an Error, on ctx cancellation, or when
// the engine closes.
func Watch[T any](ctx context.Context, e *Engine, q Query[T]) <-chan result.State[T] {
	out := make(chan result.State[T])
	signal, subID, ok := e.Subscribe(q.Tables...)

	go func() {
		defer close(out)

		if !send(ctx, out, result.Loading[T]()) {
			if ok {
				e.Unsubscribe(subID)
			}
			return
		}
		if !ok {
			send(ctx, out, result.Error[T](fmt.Sprintf("loading %s: query engine closed", q.Name)))
			return
		}
		defer e.Unsubscribe(subID)

		for {
			v, err := q.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				e.logger.Warn("live query failed", "query", q.Name, "error", err)
				send(ctx, out, result.Error[T](fmt.Sprintf("loading %s: %v", q.Name, err)))
				return
			}

			if !send(ctx, out, result.Success(v)) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case _, open := <-signal:
				if !open {
					return
				}
			}
		}
	}()

	return out
}

// send delivers v unless ctx is already done or becomes done first.
func send[T any](ctx context.Context, out chan<- T, v T) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case out <- v:
		return true
	}
}
