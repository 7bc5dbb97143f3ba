// ABOUTME: Error taxonomy returned by the catalog service
// ABOUTME: Sentinels for errors.Is plus the aggregate cascading-delete failure

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/bugbook/internal/store"
)

var (
	// ErrDuplicateEmail is returned when registering or updating to an email that is taken.
	ErrDuplicateEmail = store.ErrDuplicateEmail

	// ErrNotFound is returned when a user or item does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrAuthenticationFailed is returned for an unknown email and for a wrong
	// password alike.
	ErrAuthenticationFailed = errors.New("invalid email or password")

	// ErrStorageFault wraps storage failures not otherwise classified.
	ErrStorageFault = errors.New("storage fault")

	// ErrTransactionFailed is matched by every *TransactionError.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotSignedIn is returned when an operation needs a session and there is none.
	ErrNotSignedIn = errors.New("not signed in")
)

// TransactionError reports that a multi-table operation failed as a whole.
// Nothing it would have changed is visible.
type TransactionError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s for user %d: %v", e.Op, e.UserID, e.Err)
}

// Unwrap exposes both the ErrTransactionFailed class and the cause.
func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// classify maps a store error onto the taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrDuplicateEmail):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorageFault, err)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
