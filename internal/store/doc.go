// Package store provides persistent storage for bugbook using SQLite.
//
// # Architecture
//
// Store is the interface consumed by the catalog service. SQLiteStore is the
// only implementation; it owns a *sql.DB opened with modernc.org/sqlite and a
// single writer lock that serializes every write to the users/items table
// group.
//
// # Data Models
//
//   - User: registered account, unique email, bcrypt password hash
//   - Item: catalog record owned by a user (owner_id -> users.id)
//   - UserWithItems: a user and their items read in one snapshot
//
// Items whose owner no longer exists are never returned by the item queries;
// they join against users.
//
// # Change Notification
//
// Each successful write reports the tables it touched to the configured
// ChangeNotifier. Notification happens after commit and before the writer lock
// is released, so notifications arrive in commit order and never describe an
// uncommitted state:
//
//	engine := live.NewEngine(logger)
//	s, err := store.NewSQLiteStore(path, store.WithNotifier(engine))
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Default: ~/.local/share/bugbook/bugbook.db
//   - Testing: a file under t.TempDir(), or :memory:
//
// An in-memory database is limited to one connection so that every reader
// sees the same database.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateEmail: another user already has this email
//
// All methods accept context.Context for cancellation support.
package store
