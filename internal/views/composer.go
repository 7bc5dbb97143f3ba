// ABOUTME: Switch-to-latest composition of live item queries
// ABOUTME: At most one upstream query is live per Composer; stale results are dropped

package views

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/bugbook/internal/result"
	"github.com/2389/bugbook/internal/store"
)

// DefaultGracePeriod is how long the upstream keeps running after the last
// observer leaves.
const DefaultGracePeriod = 5 * time.Second

// ItemsState is the state delivered by a Composer.
type ItemsState = result.State[[]store.Item]

// Source provides the live item queries a Composer switches between.
type Source interface {
	AllItems(ctx context.Context) <-chan ItemsState
	ItemsByOwner(ctx context.Context, ownerID int64) <-chan ItemsState
}

// observer is one attached consumer
type observer struct {
	ch chan ItemsState
}

// Composer holds a Filter and presents the live result of the matching query.
type Composer struct {
	src    Source
	grace  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	filter    Filter
	current   ItemsState
	epoch     uint64             // bumped on every upstream start and stop
	cancel    context.CancelFunc // nil when no upstream is running
	observers map[*observer]struct{}
	suspend   *time.Timer
	closed    bool
	done      chan struct{}
}

// Option configures a Composer.
type Option func(*Composer)

// WithGracePeriod sets how long the upstream survives without observers.
// Zero or negative suspends immediately.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Composer) {
		c.grace = d
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewComposer creates a Composer starting with the given filter. No query runs
// until the first Observe.
func NewComposer(src Source, initial Filter, opts ...Option) *Composer {
	c := &Composer{
		src:       src,
		grace:     DefaultGracePeriod,
		logger:    slog.Default(),
		filter:    initial,
		current:   result.Loading[[]store.Item](),
		observers: make(map[*observer]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "views")
	return c
}

// Filter returns the current selector.
func (c *Composer) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// GracePeriod returns how long the upstream survives without observers.
func (c *Composer) GracePeriod() time.Duration {
	return c.grace
}

// Value returns the latest state for the current filter.
func (c *Composer) Value() ItemsState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetFilter switches the selector. The previous upstream is cancelled and,
// if the composer is active, the new one started, all under one lock: once
// SetFilter returns no observer receives a state computed under the old filter.
// Setting the current filter again is a no-op.
func (c *Composer) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || f == c.filter {
		return
	}

	active := c.cancel != nil || len(c.observers) > 0
	c.stopLocked()
	c.filter = f

	// Anything still buffered for an observer belongs to the old filter
	for obs := range c.observers {
		select {
		case <-obs.ch:
		default:
		}
	}
	c.publishLocked(result.Loading[[]store.Item]())

	if active {
		c.startLocked()
	}

	c.logger.Debug("filter changed", "filter", f.String())
}

// Observe attaches a consumer. The returned channel first holds the current
// state, then every newer one (conflated to the latest). It is closed when
// ctx is done or the composer is closed.
func (c *Composer) Observe(ctx context.Context) <-chan ItemsState {
	obs := &observer{ch: make(chan ItemsState, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(obs.ch)
		return obs.ch
	}

	c.observers[obs] = struct{}{}
	if c.suspend != nil {
		c.suspend.Stop()
		c.suspend = nil
	}
	if c.cancel == nil {
		c.startLocked()
	}
	offer(obs.ch, c.current)
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.detach(obs)
		case <-c.done:
		}
	}()

	return obs.ch
}

// Close stops the upstream and closes every observer channel.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.stopLocked()
	if c.suspend != nil {
		c.suspend.Stop()
		c.suspend = nil
	}
	for obs := range c.observers {
		close(obs.ch)
		delete(c.observers, obs)
	}
	close(c.done)
}

// detach removes an observer and schedules suspension when none remain.
func (c *Composer) detach(obs *observer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.observers[obs]; !ok {
		return
	}
	delete(c.observers, obs)
	close(obs.ch)

	if len(c.observers) > 0 || c.cancel == nil {
		return
	}

	if c.grace <= 0 {
		c.stopLocked()
		return
	}

	var t *time.Timer
	t = time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.suspend != t {
			return
		}
		c.suspend = nil
		if len(c.observers) == 0 {
			c.stopLocked()
			c.logger.Debug("upstream suspended", "filter", c.filter.String())
		}
	})
	c.suspend = t
}

// startLocked starts the upstream query for the current filter. Must be
// called with mu held.
func (c *Composer) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.epoch++
	c.cancel = cancel
	epoch := c.epoch

	if c.current.IsError() {
		c.publishLocked(result.Loading[[]store.Item]())
	}

	var upstream <-chan ItemsState
	switch c.filter.Kind {
	case FilterItemsForUser:
		upstream = c.src.ItemsByOwner(ctx, c.filter.UserID)
	default:
		upstream = c.src.AllItems(ctx)
	}

	go c.forward(ctx, epoch, upstream)
}

// stopLocked cancels the running upstream, if any. Must be called with mu held.
func (c *Composer) stopLocked() {
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// forward copies upstream states to observers while epoch is current.
func (c *Composer) forward(ctx context.Context, epoch uint64, upstream <-chan ItemsState) {
	for state := range upstream {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		// The composer already shows Loading or the last value for this filter
		if !state.IsLoading() {
			c.publishLocked(state)
		}
		if state.IsError() {
			// Terminal; the next Observe or SetFilter starts a fresh query
			c.stopLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}

	// Upstream ended by itself; the next Observe restarts it.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch && ctx.Err() == nil {
		c.stopLocked()
	}
}

// publishLocked records state as current and offers it to every observer,
// replacing anything they have not consumed yet. Must be called with mu held.
func (c *Composer) publishLocked(state ItemsState) {
	if state.IsLoading() && c.current.IsLoading() {
		return
	}
	c.current = state
	for obs := range c.observers {
		offer(obs.ch, state)
	}
}

// offer puts v in a one-slot channel, discarding an unread older value.
func offer(ch chan ItemsState, v ItemsState) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
