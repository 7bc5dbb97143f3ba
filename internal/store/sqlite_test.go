// ABOUTME: Tests for SQLite store lifecycle and the cascading delete transaction
// ABOUTME: Covers directory creation, atomic rollback and snapshot reads

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = first.InsertUser(ctx, &User{FirstName: "A", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	_, err = second.FindUserByEmail(ctx, "a@x.com")
	assert.NoError(t, err)
}

func TestDeleteUserAndData(t *testing.T) {
	s, n := setupTestStore(t)
	ctx := context.Background()

	a := createUser(t, s, "a@x.com")
	b := createUser(t, s, "b@x.com")
	createItem(t, s, "Beetle", a.ID)
	createItem(t, s, "Ant", a.ID)
	createItem(t, s, "Moth", b.ID)
	callsBefore := len(n.Calls())

	deleted, err := s.DeleteUserAndData(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = s.FindUserByID(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := s.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "owned rows are removed, not just hidden")

	all, err := s.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Moth"}, itemNames(all))

	calls := n.Calls()
	require.Len(t, calls, callsBefore+1, "one notification for the whole transaction")
	assert.ElementsMatch(t, []Table{TableItems, TableUsers}, calls[len(calls)-1])
}

func TestDeleteUserAndData_NotFound(t *testing.T) {
	s, n := setupTestStore(t)

	_, err := s.DeleteUserAndData(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, n.Calls())
}

func TestDeleteUserAndData_RollsBackOnFailure(t *testing.T) {
	s, n := setupTestStore(t)
	ctx := context.Background()

	a := createUser(t, s, "a@x.com")
	createItem(t, s, "Beetle", a.ID)
	createItem(t, s, "Ant", a.ID)
	callsBefore := len(n.Calls())

	// Make the second step of the cascade fail
	_, err := s.db.Exec(`
		CREATE TRIGGER refuse_user_delete BEFORE DELETE ON users
		BEGIN
			SELECT RAISE(ABORT, 'user delete refused');
		END;
	`)
	require.NoError(t, err)

	_, err = s.DeleteUserAndData(ctx, a.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user delete refused")

	// Neither step is visible
	_, err = s.FindUserByID(ctx, a.ID)
	assert.NoError(t, err)
	items, err := s.ListItemsByOwner(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beetle", "Ant"}, itemNames(items))

	assert.Len(t, n.Calls(), callsBefore, "rolled back transaction must not notify")
}

func TestDeleteUserAndData_CancelledContext(t *testing.T) {
	s, _ := setupTestStore(t)

	a := createUser(t, s, "a@x.com")
	createItem(t, s, "Beetle", a.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.DeleteUserAndData(ctx, a.ID)
	require.Error(t, err)

	_, err = s.FindUserByID(context.Background(), a.ID)
	assert.NoError(t, err, "cancelled delete must not change anything")
}

func TestGetUserWithItems(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	a := createUser(t, s, "a@x.com")
	b := createUser(t, s, "b@x.com")
	createItem(t, s, "Beetle", a.ID)
	createItem(t, s, "Moth", b.ID)

	uw, err := s.GetUserWithItems(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", uw.User.Email)
	assert.Equal(t, []string{"Beetle"}, itemNames(uw.Items))

	_, err = s.GetUserWithItems(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosedStoreReturnsErrors(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ListItems(context.Background())
	assert.Error(t, err)

	_, err = s.InsertItem(context.Background(), &Item{Name: "x", OwnerID: 1})
	assert.Error(t, err)
}
