// ABOUTME: Item persistence for the SQLite store
// ABOUTME: Item reads join users so items of deleted owners are never returned

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// visibleItems selects items whose owner still exists, in insertion order
const visibleItems = `
	SELECT i.id, i.name, i.image_location, i.owner_id, i.created_at
	FROM items i
	JOIN users u ON u.id = i.owner_id
`

// InsertItem creates a new item and returns its generated ID.
// Returns ErrNotFound, with nothing written, if the owner doesn't exist.
func (s *SQLiteStore) InsertItem(ctx context.Context, item *Item) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	var id int64
	err := s.write(ctx, []Table{TableItems}, func(tx *sql.Tx) (bool, error) {
		if _, err := findUserByID(ctx, tx, item.OwnerID); err != nil {
			return false, fmt.Errorf("checking item owner %d: %w", item.OwnerID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO items (name, image_location, owner_id, created_at)
			VALUES (?, ?, ?, ?)
		`,
			item.Name,
			item.ImageLocation,
			item.OwnerID,
			formatTime(item.CreatedAt),
		)
		if err != nil {
			return false, fmt.Errorf("inserting item: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("getting inserted item id: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	item.ID = id
	s.logger.Debug("created item", "id", id, "owner_id", item.OwnerID)
	return id, nil
}

// UpdateItem changes the name and image location of an existing item.
// Returns ErrNotFound if the item doesn't exist.
func (s *SQLiteStore) UpdateItem(ctx context.Context, item *Item) error {
	return s.write(ctx, []Table{TableItems}, func(tx *sql.Tx) (bool, error) {
		n, err := execRowsAffected(ctx, tx,
			`UPDATE items SET name = ?, image_location = ? WHERE id = ?`,
			item.Name, item.ImageLocation, item.ID)
		if err != nil {
			return false, fmt.Errorf("updating item: %w", err)
		}
		if n == 0 {
			return false, ErrNotFound
		}
		return true, nil
	})
}

// DeleteItem removes an item and returns the number of rows deleted.
// Zero rows means the item did not exist; it is not an error.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.write(ctx, []Table{TableItems}, func(tx *sql.Tx) (bool, error) {
		var err error
		n, err = execRowsAffected(ctx, tx, `DELETE FROM items WHERE id = ?`, id)
		if err != nil {
			return false, fmt.Errorf("deleting item: %w", err)
		}
		return n > 0, nil
	})
	return n, err
}

// DeleteItemsByOwner removes every item owned by ownerID.
func (s *SQLiteStore) DeleteItemsByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var n int64
	err := s.write(ctx, []Table{TableItems}, func(tx *sql.Tx) (bool, error) {
		var err error
		n, err = execRowsAffected(ctx, tx, `DELETE FROM items WHERE owner_id = ?`, ownerID)
		if err != nil {
			return false, fmt.Errorf("deleting items by owner: %w", err)
		}
		return n > 0, nil
	})
	return n, err
}

// ListItems returns every item with an existing owner, oldest first.
func (s *SQLiteStore) ListItems(ctx context.Context) ([]Item, error) {
	return queryItems(ctx, s.db, visibleItems+` ORDER BY i.id`)
}

// ListItemsByOwner returns the items owned by ownerID, oldest first.
// Returns an empty list if the owner doesn't exist.
func (s *SQLiteStore) ListItemsByOwner(ctx context.Context, ownerID int64) ([]Item, error) {
	return queryItems(ctx, s.db, visibleItems+` WHERE i.owner_id = ? ORDER BY i.id`, ownerID)
}

// CountItems returns the number of item rows, including orphans.
func (s *SQLiteStore) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		var createdAt string
		if err := rows.Scan(&item.ID, &item.Name, &item.ImageLocation, &item.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}
