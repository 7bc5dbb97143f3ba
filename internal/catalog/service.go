// ABOUTME: Catalog service is the operation set exposed to the UI layer
// ABOUTME: Writes run on the worker pool and return taxonomy errors; reads are live streams

package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/2389/bugbook/internal/credentials"
	"github.com/2389/bugbook/internal/live"
	"github.com/2389/bugbook/internal/result"
	"github.com/2389/bugbook/internal/session"
	"github.com/2389/bugbook/internal/store"
	"github.com/2389/bugbook/internal/views"
	"github.com/2389/bugbook/internal/workers"
)

// Deps are the collaborators a Service is built from. Store, Engine, Hasher,
// Session and Pool are required.
type Deps struct {
	Store   store.Store
	Engine  *live.Engine
	Hasher  *credentials.Hasher
	Session session.Store
	Pool    *workers.Pool
	Logger  *slog.Logger

	// ViewGrace is passed to every Composer created by ItemsView. Zero
	// suspends a view as soon as its last observer leaves.
	ViewGrace time.Duration
}

// Service implements the catalog operations.
type Service struct {
	store   store.Store
	engine  *live.Engine
	hasher  *credentials.Hasher
	session session.Store
	pool    *workers.Pool
	logger  *slog.Logger
	grace   time.Duration
}

// Ensure Service can back a Composer.
var _ views.Source = (*Service)(nil)

// New creates a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   d.Store,
		engine:  d.Engine,
		hasher:  d.Hasher,
		session: d.Session,
		pool:    d.Pool,
		logger:  logger.With("component", "catalog"),
		grace:   d.ViewGrace,
	}
}

// RegisterRequest carries the fields of a new account. Password is hashed
// before anything is stored and is not kept.
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	if strings.TrimSpace(req.FirstName) == "" {
		return nil, invalid("first name must not be empty")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	user, err := workers.Run(ctx, s.pool, func(ctx context.Context) (*store.User, error) {
		hash, err := s.hasher.Hash(ctx, req.Password)
		if err != nil {
			if errors.Is(err, credentials.ErrInvalidPassword) {
				return nil, invalid("%v", err)
			}
			return nil, err
		}

		user := &store.User{
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Email:        email,
			PasswordHash: hash,
		}
		if _, err := s.store.InsertUser(ctx, user); err != nil {
			return nil, classify("registering user", err)
		}
		return user, nil
	})
	if err != nil {
		s.logger.Debug("registration failed", "error", err)
		return nil, err
	}

	if err := s.session.SetCurrentUserID(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return public(user), nil
}

// Login checks credentials and signs the user in. An unknown email and a
// wrong password both return ErrAuthenticationFailed after the same amount
// of hashing work.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, error) {
	user, err := workers.Run(ctx, s.pool, func(ctx context.Context) (*store.User, error) {
		user, err := s.store.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Burn(password)
			return nil, ErrAuthenticationFailed
		}
		if err != nil {
			return nil, classify("looking up user", err)
		}

		if !s.hasher.Verify(ctx, password, user.PasswordHash) {
			return nil, ErrAuthenticationFailed
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.session.SetCurrentUserID(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user signed in", "user_id", user.ID)
	return public(user), nil
}

// Logout clears the session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.session.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("user signed out")
	return nil
}

// CurrentUser returns the signed-in user. A session pointing at a user that
// no longer exists is cleared and reported as ErrNotSignedIn.
func (s *Service) CurrentUser(ctx context.Context) (*store.User, error) {
	id, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := workers.Run(ctx, s.pool, func(ctx context.Context) (*store.User, error) {
		return s.store.FindUserByID(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		if err := s.session.Clear(ctx); err != nil {
			s.logger.Warn("clearing stale session", "user_id", id, "error", err)
		}
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, classify("loading current user", err)
	}
	return public(user), nil
}

// ProfileUpdate changes a user's profile. An empty NewPassword keeps the
// current password.
type ProfileUpdate struct {
	UserID      int64
	FirstName   string
	LastName    string
	Email       string
	NewPassword string
}

// UpdateProfile applies a ProfileUpdate and returns the updated user.
func (s *Service) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*store.User, error) {
	if strings.TrimSpace(upd.FirstName) == "" {
		return nil, invalid("first name must not be empty")
	}
	email, err := normalizeEmail(upd.Email)
	if err != nil {
		return nil, err
	}

	user, err := workers.Run(ctx, s.pool, func(ctx context.Context) (*store.User, error) {
		user, err := s.store.FindUserByID(ctx, upd.UserID)
		if err != nil {
			return nil, classify("loading user", err)
		}

		user.FirstName = strings.TrimSpace(upd.FirstName)
		user.LastName = strings.TrimSpace(upd.LastName)
		user.Email = email
		if upd.NewPassword != "" {
			hash, err := s.hasher.Hash(ctx, upd.NewPassword)
			if err != nil {
				if errors.Is(err, credentials.ErrInvalidPassword) {
					return nil, invalid("%v", err)
				}
				return nil, err
			}
			user.PasswordHash = hash
		}

		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, classify("updating user", err)
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", "user_id", user.ID)
	return public(user), nil
}

// NewItem describes an item to add. A zero OwnerID means the signed-in user.
type NewItem struct {
	Name          string
	ImageLocation string
	OwnerID       int64
}

// AddItem stores a new item and returns its ID. Returns ErrNotFound if the
// owner does not exist.
func (s *Service) AddItem(ctx context.Context, in NewItem) (int64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, invalid("item name must not be empty")
	}

	owner := in.OwnerID
	if owner == 0 {
		id, err := s.currentUserID(ctx)
		if err != nil {
			return 0, err
		}
		owner = id
	}

	id, err := workers.Run(ctx, s.pool, func(ctx context.Context) (int64, error) {
		id, err := s.store.InsertItem(ctx, &store.Item{
			Name:          name,
			ImageLocation: strings.TrimSpace(in.ImageLocation),
			OwnerID:       owner,
		})
		return id, classify("adding item", err)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("item added", "item_id", id, "owner_id", owner)
	return id, nil
}

// RenameItem changes an item's name and image location.
func (s *Service) RenameItem(ctx context.Context, id int64, name, imageLocation string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("item name must not be empty")
	}

	return workers.Do(ctx, s.pool, func(ctx context.Context) error {
		err := s.store.UpdateItem(ctx, &store.Item{
			ID:            id,
			Name:          name,
			ImageLocation: strings.TrimSpace(imageLocation),
		})
		return classify("renaming item", err)
	})
}

// DeleteItem removes an item. Returns ErrNotFound if nothing was deleted.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	n, err := workers.Run(ctx, s.pool, func(ctx context.Context) (int64, error) {
		return s.store.DeleteItem(ctx, id)
	})
	if err != nil {
		return classify("deleting item", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Info("item deleted", "item_id", id)
	return nil
}

// DeleteUserAndData deletes a user and all of their items as one unit.
// Returns ErrNotFound if the user does not exist and a *TransactionError if
// the operation failed; in both cases nothing changed. Deleting the signed-in
// user also ends the session.
func (s *Service) DeleteUserAndData(ctx context.Context, userID int64) error {
	n, err := workers.Run(ctx, s.pool, func(ctx context.Context) (int64, error) {
		return s.store.DeleteUserAndData(ctx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		s.logger.Error("delete user and data failed", "user_id", userID, "error", err)
		return &TransactionError{Op: "delete user and data", UserID: userID, Err: err}
	}

	current, ok, err := s.session.CurrentUserID(ctx)
	if err != nil {
		s.logger.Warn("reading session after user delete", "user_id", userID, "error", err)
	}
	if ok && current == userID {
		if err := s.session.Clear(ctx); err != nil {
			s.logger.Warn("clearing session of deleted user", "user_id", userID, "error", err)
		}
	}

	s.logger.Info("user deleted", "user_id", userID, "items", n)
	return nil
}

// AllItems streams every visible item, oldest first.
func (s *Service) AllItems(ctx context.Context) <-chan result.State[[]store.Item] {
	return live.Watch(ctx, s.engine, live.Query[[]store.Item]{
		Name:   "items",
		Tables: []store.Table{store.TableItems, store.TableUsers},
		Read:   pooled(s.pool, s.store.ListItems),
	})
}

// ItemsByOwner streams the items owned by ownerID, oldest first.
func (s *Service) ItemsByOwner(ctx context.Context, ownerID int64) <-chan result.State[[]store.Item] {
	return live.Watch(ctx, s.engine, live.Query[[]store.Item]{
		Name:   "your items",
		Tables: []store.Table{store.TableItems, store.TableUsers},
		Read: pooled(s.pool, func(ctx context.Context) ([]store.Item, error) {
			return s.store.ListItemsByOwner(ctx, ownerID)
		}),
	})
}

// UserWithItems streams a user together with their items. If the user does
// not exist (or is deleted while watched) the stream ends with an Error.
func (s *Service) UserWithItems(ctx context.Context, userID int64) <-chan result.State[store.UserWithItems] {
	return live.Watch(ctx, s.engine, live.Query[store.UserWithItems]{
		Name:   "user",
		Tables: []store.Table{store.TableItems, store.TableUsers},
		Read: pooled(s.pool, func(ctx context.Context) (store.UserWithItems, error) {
			uw, err := s.store.GetUserWithItems(ctx, userID)
			if err != nil {
				return store.UserWithItems{}, err
			}
			uw.User = *public(&uw.User)
			return *uw, nil
		}),
	})
}

// Users streams every registered user, without password hashes.
func (s *Service) Users(ctx context.Context) <-chan result.State[[]store.User] {
	return live.Watch(ctx, s.engine, live.Query[[]store.User]{
		Name:   "users",
		Tables: []store.Table{store.TableUsers},
		Read: pooled(s.pool, func(ctx context.Context) ([]store.User, error) {
			users, err := s.store.ListUsers(ctx)
			if err != nil {
				return nil, err
			}
			for i := range users {
				users[i].PasswordHash = ""
			}
			return users, nil
		}),
	})
}

// ItemsView returns a Composer over this service starting at filter.
func (s *Service) ItemsView(filter views.Filter) *views.Composer {
	return views.NewComposer(s, filter,
		views.WithLogger(s.logger),
		views.WithGracePeriod(s.grace),
	)
}

func (s *Service) currentUserID(ctx context.Context) (int64, error) {
	id, ok, err := s.session.CurrentUserID(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotSignedIn
	}
	return id, nil
}

// pooled runs a read on the worker pool.
func pooled[T any](p *workers.Pool, read func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return workers.Run(ctx, p, read)
	}
}

// public returns a copy of user without the password hash.
func public(user *store.User) *store.User {
	u := *user
	u.PasswordHash = ""
	return &u
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("malformed email %q", email)
	}
	return email, nil
}
