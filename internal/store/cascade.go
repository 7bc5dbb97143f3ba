// ABOUTME: Multi-table operations that must be atomic
// ABOUTME: Cascading user delete and consistent user-with-items reads

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DeleteUserAndData deletes every item owned by userID and then the user row,
// in one transaction. Returns ErrNotFound (with nothing changed) if the user
// doesn't exist. On any failure the transaction is rolled back and no change
// notification is sent, so readers only ever see the state before or after.
func (s *SQLiteStore) DeleteUserAndData(ctx context.Context, userID int64) (int64, error) {
	var itemsDeleted int64

	err := s.write(ctx, []Table{TableItems, TableUsers}, func(tx *sql.Tx) (bool, error) {
		if _, err := findUserByID(ctx, tx, userID); err != nil {
			return false, err
		}

		n, err := execRowsAffected(ctx, tx, `DELETE FROM items WHERE owner_id = ?`, userID)
		if err != nil {
			return false, fmt.Errorf("deleting items of user %d: %w", userID, err)
		}
		itemsDeleted = n

		users, err := execRowsAffected(ctx, tx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return false, fmt.Errorf("deleting user %d: %w", userID, err)
		}
		if users != 1 {
			return false, fmt.Errorf("deleting user %d: wrong rows affected count: %d", userID, users)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("deleted user and data", "user_id", userID, "items", itemsDeleted)
	return itemsDeleted, nil
}

// GetUserWithItems reads a user and the items they own from one snapshot.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserWithItems(ctx context.Context, userID int64) (*UserWithItems, error) {
	var result *UserWithItems

	err := withTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		user, err := findUserByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		items, err := queryItems(ctx, tx, visibleItems+` WHERE i.owner_id = ? ORDER BY i.id`, userID)
		if err != nil {
			return err
		}
		result = &UserWithItems{User: *user, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
