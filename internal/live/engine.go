// ABOUTME: In-memory table invalidation broadcaster for live queries
// ABOUTME: The store publishes committed table changes, subscribers re-run their reads

package live

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/bugbook/internal/store"
)

// subscription is one registered listener and the tables it watches
type subscription struct {
	tables []store.Table
	signal chan struct{}
}

// Engine fans out table change notifications to live query subscribers.
// It implements store.ChangeNotifier.
type Engine struct {
	mu     sync.RWMutex
	subs   map[string]*subscription                  // subID -> subscription
	byTbl  map[store.Table]map[string]*subscription // table -> subID -> subscription
	closed bool
	logger *slog.Logger
}

// Ensure Engine can be handed to the store.
var _ store.ChangeNotifier = (*Engine)(nil)

// NewEngine creates an engine. Pass nil logger for default.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		subs:   make(map[string]*subscription),
		byTbl:  make(map[store.Table]map[string]*subscription),
		logger: logger.With("component", "live"),
	}
}

// Subscribe registers interest in the given tables. The returned channel
// receives a value after any of them changes; pending signals coalesce. The
// channel is closed by Unsubscribe or Close. ok is false if the engine is closed.
func (e *Engine) Subscribe(tables ...store.Table) (signal <-chan struct{}, subID string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, "", false
	}

	subID = uuid.New().String()
	sub := &subscription{
		tables: tables,
		signal: make(chan struct{}, 1),
	}
	e.subs[subID] = sub
	for _, t := range tables {
		if _, ok := e.byTbl[t]; !ok {
			e.byTbl[t] = make(map[string]*subscription)
		}
		e.byTbl[t][subID] = sub
	}

	e.logger.Debug("subscriber added", "sub_id", subID, "tables", tables)
	return sub.signal, subID, true
}

// TablesChanged signals every subscriber watching any of the tables.
// Never blocks: a subscriber with a pending signal is already due to re-read.
func (e *Engine) TablesChanged(tables ...store.Table) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range tables {
		for _, sub := range e.byTbl[t] {
			select {
			case sub.signal <- struct{}{}:
			default:
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (e *Engine) Unsubscribe(subID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, ok := e.subs[subID]
	if !ok {
		return
	}

	delete(e.subs, subID)
	for _, t := range sub.tables {
		delete(e.byTbl[t], subID)
		if len(e.byTbl[t]) == 0 {
			delete(e.byTbl, t)
		}
	}
	close(sub.signal)

	e.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the engine and closes all subscriber channels.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	for subID, sub := range e.subs {
		close(sub.signal)
		delete(e.subs, subID)
	}
	clear(e.byTbl)

	e.logger.Debug("engine closed")
}
