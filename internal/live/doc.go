// Package live turns read queries into subscriptions that refresh themselves
// whenever a write touches the tables they read.
//
// # Overview
//
// Engine is an in-memory table-keyed broadcaster. The store calls
// TablesChanged after every committed write; each subscriber to one of those
// tables is signalled. Signals coalesce in a one-slot channel: a subscriber
// that is busy re-reading when several writes land performs a single further
// read, which observes all of them.
//
// Watch runs a Query against the engine:
//
//	ch := live.Watch(ctx, engine, live.Query[[]store.Item]{
//	    Name:   "items",
//	    Tables: []store.Table{store.TableItems, store.TableUsers},
//	    Read:   st.ListItems,
//	})
//	for state := range ch {
//	    // Loading, then Success on every change, or a final Error
//	}
//
// # Delivery Guarantees
//
//   - Exactly one Loading first.
//   - One Success after the initial read and after each batch of changes.
//   - A failed read is delivered as one Error, after which the channel closes.
//   - Each subscriber reads sequentially, so it never sees an older state
//     after a newer one.
//   - Cancelling ctx stops deliveries and closes the channel; the canceller
//     never blocks.
package live
