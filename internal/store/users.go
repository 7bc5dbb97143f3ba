// ABOUTME: User persistence for the SQLite store
// ABOUTME: Registration inserts, profile updates, lookups by id and email

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, first_name, last_name, email, password_hash, created_at`

// InsertUser creates a new user and returns its generated ID.
// Returns ErrDuplicateEmail if the email is already registered; nothing is
// written in that case.
func (s *SQLiteStore) InsertUser(ctx context.Context, user *User) (int64, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	var id int64
	err := s.write(ctx, []Table{TableUsers}, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (first_name, last_name, email, password_hash, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			user.FirstName,
			user.LastName,
			user.Email,
			user.PasswordHash,
			formatTime(user.CreatedAt),
		)
		if err != nil {
			if isConstraintViolation(err) {
				return false, ErrDuplicateEmail
			}
			return false, fmt.Errorf("inserting user: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("getting inserted user id: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	user.ID = id
	s.logger.Debug("created user", "id", id)
	return id, nil
}

// UpdateUser overwrites the profile fields and password hash of an existing user.
// Returns ErrNotFound if the user doesn't exist and ErrDuplicateEmail if the
// new email belongs to someone else.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	err := s.write(ctx, []Table{TableUsers}, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET first_name = ?, last_name = ?, email = ?, password_hash = ?
			WHERE id = ?
		`,
			user.FirstName,
			user.LastName,
			user.Email,
			user.PasswordHash,
			user.ID,
		)
		if err != nil {
			if isConstraintViolation(err) {
				return false, ErrDuplicateEmail
			}
			return false, fmt.Errorf("updating user: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("getting rows affected: %w", err)
		}
		if n == 0 {
			return false, ErrNotFound
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("updated user", "id", user.ID)
	return nil
}

// DeleteUser removes a single user row and returns the number of rows deleted.
// It does not touch the user's items; use DeleteUserAndData for that.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.write(ctx, []Table{TableUsers}, func(tx *sql.Tx) (bool, error) {
		var err error
		n, err = execRowsAffected(ctx, tx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return false, fmt.Errorf("deleting user: %w", err)
		}
		return n > 0, nil
	})
	return n, err
}

// FindUserByEmail retrieves a user by email.
// Returns ErrNotFound if no user has that email.
func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

// FindUserByID retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) FindUserByID(ctx context.Context, id int64) (*User, error) {
	return findUserByID(ctx, s.db, id)
}

func findUserByID(ctx context.Context, q querier, id int64) (*User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by ID.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of user rows.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var user User
	var createdAt string

	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	user.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func execRowsAffected(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}
