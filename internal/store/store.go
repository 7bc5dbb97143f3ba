// ABOUTME: Store interface and data types for bugbook persistence
// ABOUTME: Defines User, Item and the table-change notification contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a user with the same email already exists
var ErrDuplicateEmail = errors.New("email already registered")

// Table names a table whose changes can be observed.
type Table string

const (
	TableUsers Table = "users"
	TableItems Table = "items"
)

// ChangeNotifier receives the set of tables touched by a committed write.
type ChangeNotifier interface {
	TablesChanged(tables ...Table)
}

// User is a registered account
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string // bcrypt hash, never the plaintext
	CreatedAt    time.Time
}

// Item is a catalog record owned by a user
type Item struct {
	ID            int64
	Name          string
	ImageLocation string // URI or path, may be empty
	OwnerID       int64
	CreatedAt     time.Time
}

// UserWithItems is a user together with every item they own
type UserWithItems struct {
	User  User
	Items []Item
}

// Store defines the persistence operations used by the catalog
type Store interface {
	// Users
	InsertUser(ctx context.Context, user *User) (int64, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id int64) (int64, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int, error)

	// Items
	InsertItem(ctx context.Context, item *Item) (int64, error)
	UpdateItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, id int64) (int64, error)
	DeleteItemsByOwner(ctx context.Context, ownerID int64) (int64, error)
	ListItems(ctx context.Context) ([]Item, error)
	ListItemsByOwner(ctx context.Context, ownerID int64) ([]Item, error)
	CountItems(ctx context.Context) (int, error)

	// GetUserWithItems reads a user and their items in one snapshot
	GetUserWithItems(ctx context.Context, userID int64) (*UserWithItems, error)

	// DeleteUserAndData removes a user and all of their items atomically.
	// Returns the number of items deleted.
	DeleteUserAndData(ctx context.Context, userID int64) (int64, error)

	// Close releases any resources held by the store
	Close() error
}
