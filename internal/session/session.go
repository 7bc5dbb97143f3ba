// ABOUTME: Session/preference store holding the signed-in user id
// ABOUTME: File-backed TOML implementation plus an in-memory one

// Package session keeps the id of the currently authenticated user across
// process restarts.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Store holds the optional current user id.
type Store interface {
	// CurrentUserID returns the signed-in user id; ok is false when nobody is signed in.
	CurrentUserID(ctx context.Context) (id int64, ok bool, err error)
	SetCurrentUserID(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

// prefs is the on-disk document
type prefs struct {
	UserID *int64 `toml:"user_id,omitempty"`
}

// FileStore persists the session as a small TOML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// Ensure both implementations satisfy Store.
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// NewFileStore creates a FileStore at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// CurrentUserID reads the stored user id. A missing file means no session.
func (f *FileStore) CurrentUserID(ctx context.Context) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.load()
	if err != nil {
		return 0, false, err
	}
	if p.UserID == nil {
		return 0, false, nil
	}
	return *p.UserID, true, nil
}

// SetCurrentUserID records id as the signed-in user.
func (f *FileStore) SetCurrentUserID(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.save(prefs{UserID: &id})
}

// Clear removes the session.
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.save(prefs{})
}

func (f *FileStore) load() (prefs, error) {
	var p prefs
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("reading session file: %w", err)
	}
	if _, err := toml.Decode(string(data), &p); err != nil {
		return p, fmt.Errorf("parsing session file: %w", err)
	}
	return p, nil
}

// save writes the document to a temp file and renames it into place.
func (f *FileStore) save(p prefs) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.toml")
	if err != nil {
		return fmt.Errorf("creating session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(p); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu     sync.Mutex
	userID int64
	ok     bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CurrentUserID(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.ok, nil
}

func (m *MemoryStore) SetCurrentUserID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID, m.ok = id, true
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID, m.ok = 0, false
	return nil
}
