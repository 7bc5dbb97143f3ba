// Package views composes live item queries behind a switchable filter.
//
// A Composer exposes one logical stream whose content depends on the current
// Filter (all items, or the items of one user). Changing the filter cancels
// the previous upstream query and starts the new one; nothing computed under
// the previous filter is delivered after SetFilter returns.
//
// Observers receive the latest state through a one-slot channel: a slow
// observer skips intermediate states but always ends on the newest one. The
// upstream query runs while at least one observer is attached, and for a grace
// period after the last one leaves, so a briefly detached UI resumes without
// re-reading.
package views
