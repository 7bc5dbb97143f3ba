// ABOUTME: Tests for the catalog service against a real SQLite store
// ABOUTME: Covers accounts, item writes, cascading delete and live item streams

package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/bugbook/internal/config"
	"github.com/2389/bugbook/internal/credentials"
	"github.com/2389/bugbook/internal/live"
	"github.com/2389/bugbook/internal/result"
	"github.com/2389/bugbook/internal/session"
	"github.com/2389/bugbook/internal/store"
	"github.com/2389/bugbook/internal/views"
	"github.com/2389/bugbook/internal/workers"
)

type fixture struct {
	svc     *Service
	store   *store.SQLiteStore
	engine  *live.Engine
	pool    *workers.Pool
	session *session.MemoryStore
	dbPath  string
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	engine := live.NewEngine(nil)
	st, err := store.NewSQLiteStore(dbPath, store.WithNotifier(engine))
	require.NoError(t, err)
	pool := workers.NewPool(4, nil)
	sess := session.NewMemoryStore()

	t.Cleanup(func() {
		engine.Close()
		pool.Close()
		st.Close()
	})

	svc := New(Deps{
		Store:     st,
		Engine:    engine,
		Hasher:    credentials.NewHasher(bcrypt.MinCost),
		Session:   sess,
		Pool:      pool,
		ViewGrace: 50 * time.Millisecond,
	})
	return &fixture{svc: svc, store: st, engine: engine, pool: pool, session: sess, dbPath: dbPath}
}

func (f *fixture) register(t *testing.T, first, email string) *store.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterRequest{
		FirstName: first,
		LastName:  "Tester",
		Email:     email,
		Password:  "correct horse",
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) addItem(t *testing.T, name string, owner int64) int64 {
	t.Helper()
	id, err := f.svc.AddItem(context.Background(), NewItem{Name: name, OwnerID: owner})
	require.NoError(t, err)
	return id
}

// await reads states until one satisfies match.
func await[T any](t *testing.T, ch <-chan result.State[T], match func(result.State[T]) bool) result.State[T] {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			require.True(t, ok, "stream closed before expected state")
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
		}
	}
}

func successWith(names ...string) func(result.State[[]store.Item]) bool {
	return func(s result.State[[]store.Item]) bool {
		if !s.IsSuccess() || len(s.Data) != len(names) {
			return false
		}
		for i, it := range s.Data {
			if it.Name != names[i] {
				return false
			}
		}
		return true
	}
}

func TestRegister_SignsIn(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, RegisterRequest{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "analytical",
	})
	require.NoError(t, err)
	assert.Positive(t, u.ID)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Empty(t, u.PasswordHash, "hash must not leave the service")

	stored, err := f.store.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "analytical", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("analytical")))

	current, err := f.svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	f.register(t, "A", "a@x.com")
	before, err := f.store.CountUsers(ctx)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterRequest{FirstName: "B", Email: "A@X.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	after, err := f.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegister_InvalidInput(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"blank first name", RegisterRequest{FirstName: "  ", Email: "a@x.com", Password: "pw"}},
		{"malformed email", RegisterRequest{FirstName: "A", Email: "not-an-email", Password: "pw"}},
		{"display name email", RegisterRequest{FirstName: "A", Email: "Ada <a@x.com>", Password: "pw"}},
		{"empty password", RegisterRequest{FirstName: "A", Email: "a@x.com", Password: ""}},
		{"long password", RegisterRequest{FirstName: "A", Email: "a@x.com", Password: string(make([]byte, 73))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	n, err := f.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLogin(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	u := f.register(t, "A", "a@x.com")
	require.NoError(t, f.svc.Logout(ctx))

	_, err := f.svc.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	got, err := f.svc.Login(ctx, " A@x.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	current, err := f.svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	f.register(t, "A", "a@x.com")
	require.NoError(t, f.svc.Logout(ctx))

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "wrong")
	_, unknownEmail := f.svc.Login(ctx, "b@x.com", "correct horse")

	assert.ErrorIs(t, wrongPassword, ErrAuthenticationFailed)
	assert.ErrorIs(t, unknownEmail, ErrAuthenticationFailed)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	_, ok, err := f.session.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "failed login must not sign in")
}

func TestCurrentUser_StaleSessionIsCleared(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.session.SetCurrentUserID(ctx, 999))

	_, err := f.svc.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, ok, err := f.session.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateProfile(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")
	f.register(t, "B", "b@x.com")

	updated, err := f.svc.UpdateProfile(ctx, ProfileUpdate{
		UserID:      a.ID,
		FirstName:   "Augusta",
		LastName:    "King",
		Email:       "augusta@x.com",
		NewPassword: "new secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", updated.FirstName)
	assert.Equal(t, "augusta@x.com", updated.Email)
	assert.Empty(t, updated.PasswordHash)

	_, err = f.svc.Login(ctx, "augusta@x.com", "new secret")
	assert.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, ProfileUpdate{UserID: a.ID, FirstName: "A", Email: "b@x.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = f.svc.UpdateProfile(ctx, ProfileUpdate{UserID: 999, FirstName: "Z", Email: "z@x.com"})
	assert.ErrorIs(t, err, ErrNotFound)

	// Empty password keeps the old one
	_, err = f.svc.UpdateProfile(ctx, ProfileUpdate{UserID: a.ID, FirstName: "A", Email: "augusta@x.com"})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "augusta@x.com", "new secret")
	assert.NoError(t, err)
}

func TestAddItem(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")

	id, err := f.svc.AddItem(ctx, NewItem{Name: "  Beetle ", ImageLocation: "file:///beetle.jpg"})
	require.NoError(t, err)
	assert.Positive(t, id)

	items, err := f.store.ListItemsByOwner(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Beetle", items[0].Name)
	assert.Equal(t, "file:///beetle.jpg", items[0].ImageLocation)
}

func TestAddItem_BlankNameRejected(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	f.register(t, "A", "a@x.com")

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := f.svc.AddItem(ctx, NewItem{Name: name})
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q", name)
	}

	n, err := f.store.CountItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddItem_RequiresSession(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.AddItem(context.Background(), NewItem{Name: "Beetle"})
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestAddItem_UnknownOwner(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, NewItem{Name: "Ghost", OwnerID: 999})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := f.store.CountItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRenameItem(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")
	id := f.addItem(t, "Beetle", a.ID)

	require.NoError(t, f.svc.RenameItem(ctx, id, "Stag Beetle", ""))
	items, err := f.store.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Stag Beetle", items[0].Name)

	assert.ErrorIs(t, f.svc.RenameItem(ctx, id, " ", ""), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.RenameItem(ctx, 999, "Ghost", ""), ErrNotFound)
}

func TestDeleteItem(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")
	id := f.addItem(t, "Beetle", a.ID)

	require.NoError(t, f.svc.DeleteItem(ctx, id))
	assert.ErrorIs(t, f.svc.DeleteItem(ctx, id), ErrNotFound)
}

func TestDeleteUserAndData_Scenario(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	a := f.register(t, "A", "a@x.com")
	f.addItem(t, "Beetle", 0)
	f.addItem(t, "Ant", 0)

	all := f.svc.AllItems(ctx)
	await(t, all, successWith("Beetle", "Ant"))

	mine := f.svc.ItemsByOwner(ctx, a.ID)
	await(t, mine, successWith("Beetle", "Ant"))

	require.NoError(t, f.svc.DeleteUserAndData(context.Background(), a.ID))

	await(t, all, successWith())
	await(t, mine, successWith())

	_, ok, err := f.session.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "deleting the signed-in user ends the session")

	n, err := f.store.CountItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// record collects every state from ch until done matches, the stream
// closes, or it times out.
func record[T any](ch <-chan result.State[T], done func(result.State[T]) bool) <-chan []result.State[T] {
	out := make(chan []result.State[T], 1)
	go func() {
		var seen []result.State[T]
		timeout := time.After(3 * time.Second)
		for {
			select {
			case s, ok := <-ch:
				if !ok {
					out <- seen
					return
				}
				seen = append(seen, s)
				if done(s) {
					out <- seen
					return
				}
			case <-timeout:
				out <- seen
				return
			}
		}
	}()
	return out
}

func TestDeleteUserAndData_ObserversSeeBeforeOrAfterOnly(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	b := f.register(t, "B", "b@x.com")
	f.addItem(t, "Moth", b.ID)
	a := f.register(t, "A", "a@x.com")

	const n = 8
	var owned []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Bug %d", i)
		f.addItem(t, name, a.ID)
		owned = append(owned, name)
	}
	everything := append([]string{"Moth"}, owned...)

	mine := f.svc.ItemsByOwner(ctx, a.ID)
	all := f.svc.AllItems(ctx)
	profile := f.svc.UserWithItems(ctx, a.ID)

	await(t, mine, successWith(owned...))
	await(t, all, successWith(everything...))
	await(t, profile, func(s result.State[store.UserWithItems]) bool {
		return s.IsSuccess() && len(s.Data.Items) == n
	})

	mineSeen := record(mine, successWith())
	allSeen := record(all, successWith("Moth"))
	profileSeen := record(profile, func(s result.State[store.UserWithItems]) bool { return s.IsError() })

	require.NoError(t, f.svc.DeleteUserAndData(ctx, a.ID))

	states := <-mineSeen
	require.NotEmpty(t, states)
	assert.True(t, successWith()(states[len(states)-1]), "owner stream never reached the empty set")
	for _, s := range states {
		assert.True(t, successWith(owned...)(s) || successWith()(s), "intermediate owner state %v", s)
	}

	states = <-allSeen
	require.NotEmpty(t, states)
	assert.True(t, successWith("Moth")(states[len(states)-1]), "all-items stream never reached the post-delete set")
	for _, s := range states {
		assert.True(t, successWith(everything...)(s) || successWith("Moth")(s), "intermediate all-items state %v", s)
	}

	userStates := <-profileSeen
	require.NotEmpty(t, userStates)
	assert.True(t, userStates[len(userStates)-1].IsError(), "user stream never observed the deletion")
	for _, s := range userStates {
		if s.IsSuccess() {
			assert.Len(t, s.Data.Items, n, "user present with a partial item set")
		}
	}
}

func TestDeleteUserAndData_OtherUserKeepsSession(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")

	require.NoError(t, f.svc.DeleteUserAndData(ctx, a.ID))

	id, ok, err := f.session.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, b.ID, id)
}

func TestDeleteUserAndData_NotFound(t *testing.T) {
	f := setupService(t)

	err := f.svc.DeleteUserAndData(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	var txErr *TransactionError
	assert.False(t, errors.As(err, &txErr))
}

func TestDeleteUserAndData_FailureChangesNothing(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	a := f.register(t, "A", "a@x.com")
	f.addItem(t, "Beetle", a.ID)
	f.addItem(t, "Ant", a.ID)

	all := f.svc.AllItems(ctx)
	await(t, all, successWith("Beetle", "Ant"))

	// A second connection installs a trigger that fails the user delete
	db, err := sql.Open("sqlite", f.dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`
		CREATE TRIGGER refuse_user_delete BEFORE DELETE ON users
		BEGIN
			SELECT RAISE(ABORT, 'user delete refused');
		END;
	`)
	require.NoError(t, err)

	err = f.svc.DeleteUserAndData(ctx, a.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionFailed)

	var txErr *TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, a.ID, txErr.UserID)
	assert.Equal(t, "delete user and data", txErr.Op)

	items, err := f.store.ListItemsByOwner(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2, "item delete must be rolled back")

	_, ok, err := f.session.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "session survives a failed delete")

	// Observers saw no intermediate state
	select {
	case s := <-all:
		t.Fatalf("unexpected state after failed delete: %v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAllItems_ErrorAfterStoreClosed(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	a := f.register(t, "A", "a@x.com")
	f.addItem(t, "Beetle", a.ID)
	require.NoError(t, f.store.Close())

	ch := f.svc.AllItems(ctx)
	s := await(t, ch, func(s result.State[[]store.Item]) bool { return !s.IsLoading() })
	require.True(t, s.IsError())
	assert.Contains(t, s.Message, "items")

	_, open := <-ch
	assert.False(t, open, "stream ends after an error")
}

func TestUsers_HidesHashes(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	f.register(t, "A", "a@x.com")

	ch := f.svc.Users(ctx)
	s := await(t, ch, func(s result.State[[]store.User]) bool { return s.IsSuccess() && len(s.Data) == 1 })
	assert.Empty(t, s.Data[0].PasswordHash)

	f.register(t, "B", "b@x.com")
	s = await(t, ch, func(s result.State[[]store.User]) bool { return s.IsSuccess() && len(s.Data) == 2 })
	assert.Equal(t, "b@x.com", s.Data[1].Email)
}

func TestUserWithItems(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	a := f.register(t, "A", "a@x.com")
	f.addItem(t, "Beetle", a.ID)

	ch := f.svc.UserWithItems(ctx, a.ID)
	s := await(t, ch, func(s result.State[store.UserWithItems]) bool { return s.IsSuccess() })
	assert.Equal(t, "a@x.com", s.Data.User.Email)
	assert.Empty(t, s.Data.User.PasswordHash)
	require.Len(t, s.Data.Items, 1)

	f.addItem(t, "Ant", a.ID)
	await(t, ch, func(s result.State[store.UserWithItems]) bool { return s.IsSuccess() && len(s.Data.Items) == 2 })

	require.NoError(t, f.svc.DeleteUserAndData(ctx, a.ID))
	s = await(t, ch, func(s result.State[store.UserWithItems]) bool { return s.IsError() })
	assert.Contains(t, s.Message, "not found")
}

func TestItemsView_SwitchShowsOnlyNewFilter(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	f.addItem(t, "Beetle", a.ID)
	f.addItem(t, "Moth", b.ID)
	f.addItem(t, "Ant", a.ID)

	view := f.svc.ItemsView(views.AllItems())
	defer view.Close()

	ch := view.Observe(ctx)
	await(t, ch, successWith("Beetle", "Moth", "Ant"))

	view.SetFilter(views.ItemsForUser(a.ID))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-ch:
			if !s.IsSuccess() {
				continue
			}
			for _, it := range s.Data {
				require.Equal(t, a.ID, it.OwnerID, "state from the previous filter leaked")
			}
			if len(s.Data) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("never received items for the new filter")
		}
	}
}

func TestAllItems_ConcurrentWritesAreMonotonic(t *testing.T) {
	f := setupService(t)
	ctx := t.Context()

	a := f.register(t, "A", "a@x.com")
	ch := f.svc.AllItems(ctx)
	await(t, ch, successWith())

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AddItem(context.Background(), NewItem{Name: fmt.Sprintf("Bug %d", i), OwnerID: a.ID})
			assert.NoError(t, err)
		}(i)
	}

	last := 0
	deadline := time.After(3 * time.Second)
	for last < writers {
		select {
		case s := <-ch:
			require.True(t, s.IsSuccess())
			require.GreaterOrEqual(t, len(s.Data), last, "older snapshot delivered after newer one")
			last = len(s.Data)
		case <-deadline:
			t.Fatalf("saw %d of %d items", last, writers)
		}
	}
	wg.Wait()
}

func TestItemsView_ZeroGraceIsHonoured(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Credentials.BcryptCost = bcrypt.MinCost
	cfg.Views.SuspendGrace = 0

	app, err := Open(cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	view := app.ItemsView(views.AllItems())
	defer view.Close()
	assert.Equal(t, time.Duration(0), view.GracePeriod())

	cfg.Views.SuspendGrace = 2 * time.Second
	other, err := Open(cfg, nil)
	require.NoError(t, err)
	defer other.Close()

	view2 := other.ItemsView(views.AllItems())
	defer view2.Close()
	assert.Equal(t, 2*time.Second, view2.GracePeriod())
}

// brokenSession fails every clear, and every read when failReads is set.
type brokenSession struct {
	*session.MemoryStore
	failReads bool
}

var errSessionIO = errors.New("session file locked")

func (b brokenSession) CurrentUserID(ctx context.Context) (int64, bool, error) {
	id, ok, err := b.MemoryStore.CurrentUserID(ctx)
	if b.failReads {
		err = errSessionIO
	}
	return id, ok, err
}

func (b brokenSession) Clear(ctx context.Context) error {
	return errSessionIO
}

func TestSessionFailuresAreLogged(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")

	var logs bytes.Buffer
	withSession := func(sess session.Store) *Service {
		return New(Deps{
			Store:   f.store,
			Engine:  f.engine,
			Hasher:  credentials.NewHasher(bcrypt.MinCost),
			Session: sess,
			Pool:    f.pool,
			Logger:  slog.New(slog.NewTextHandler(&logs, nil)),
		})
	}

	svc := withSession(brokenSession{MemoryStore: f.session, failReads: true})
	require.NoError(t, svc.DeleteUserAndData(ctx, a.ID))
	assert.Contains(t, logs.String(), "reading session after user delete")
	assert.Contains(t, logs.String(), "clearing session of deleted user")

	// The clear failed, so the session still points at the deleted user.
	logs.Reset()
	svc = withSession(brokenSession{MemoryStore: f.session})
	_, err := svc.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Contains(t, logs.String(), "clearing stale session")
}
