package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/modelctl/mcprun/pkg/errors"
)

// storeFile is the persisted users.json shape
type storeFile struct {
	Users []*User `json:"users"`
}

// Store is the durable user store. The whole store is rewritten on every
// mutation via a write-to-temp-then-rename so a crash mid-write never
// leaves a partially written file behind. Stored records are never
// mutated in place: Update swaps in a modified copy under the write
// lock, so a *User handed out by a getter stays stable for its holder.
type Store struct {
	path string

	mu     sync.RWMutex
	users  map[string]*User // by ID
	byName map[string]string
}

// NewStore creates a store backed by the given file path
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		users:  make(map[string]*User),
		byName: make(map[string]string),
	}
}

// Load reads the store from disk. A missing file yields an empty store;
// an unreadable or corrupted file is a fatal persistence error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.users = make(map[string]*User)
			s.byName = make(map[string]string)
			return nil
		}
		return errors.NewPersistenceError(fmt.Sprintf("failed to read user store %s", s.path), err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.NewStoreCorruptError(s.path, err)
	}

	users := make(map[string]*User, len(f.Users))
	byName := make(map[string]string, len(f.Users))
	for _, u := range f.Users {
		users[u.ID] = u
		byName[u.Username] = u.ID
	}
	s.users = users
	s.byName = byName
	return nil
}

// Save rewrites the store wholesale via atomic replace
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

// saveLocked marshals and writes the store. The caller must hold s.mu in
// at least read mode so the records cannot change mid-marshal.
func (s *Store) saveLocked() error {
	f := storeFile{Users: make([]*User, 0, len(s.users))}
	for _, u := range s.users {
		f.Users = append(f.Users, u)
	}
	sort.Slice(f.Users, func(i, j int) bool { return f.Users[i].Username < f.Users[j].Username })

	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return errors.NewPersistenceError("failed to marshal user store", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewPersistenceError("failed to create store directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return errors.NewPersistenceError("failed to create temp store file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewPersistenceError("failed to write temp store file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistenceError("failed to close temp store file", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistenceError("failed to set store permissions", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.NewPersistenceError("failed to replace user store", err)
	}
	return nil
}

// Get returns the user with the given ID, or nil
func (s *Store) Get(id string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id]
}

// GetByName returns the user with the given username, or nil.
// Usernames are case-sensitive.
func (s *Store) GetByName(username string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byName[username]; ok {
		return s.users[id]
	}
	return nil
}

// GetByAPIKey returns the user holding the given API key, or nil
func (s *Store) GetByAPIKey(key string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.HasAPIKey(key) {
			return u
		}
	}
	return nil
}

// Add inserts a user, enforcing username uniqueness
func (s *Store) Add(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[u.Username]; exists {
		return errors.NewAlreadyExistsError(fmt.Sprintf("user %q", u.Username))
	}
	if _, exists := s.users[u.ID]; exists {
		return errors.NewAlreadyExistsError(fmt.Sprintf("user id %q", u.ID))
	}
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return nil
}

// Update applies fn to a copy of the user, swaps the copy in and
// persists the store, all under the write lock. A failing fn or a failing
// persist leaves the previous record in place, so memory stays consistent
// with disk.
func (s *Store) Update(id string, fn func(*User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[id]
	if !ok {
		return errors.NewValidationError("user not found")
	}
	updated := current.clone()
	if err := fn(updated); err != nil {
		return err
	}
	s.users[id] = updated
	if err := s.saveLocked(); err != nil {
		s.users[id] = current
		return err
	}
	return nil
}

// Remove deletes a user, reporting whether it was present
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false
	}
	delete(s.byName, u.Username)
	delete(s.users, id)
	return true
}

// Count returns the number of stored users
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// List returns all users sorted by username
func (s *Store) List() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
