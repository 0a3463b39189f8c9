package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelctl/mcprun/pkg/errors"
)

func storeUser(id, username string) *User {
	return &User{
		ID:          id,
		Username:    username,
		Permissions: map[string]PermissionLevel{SystemCategory: PermissionRead},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Count())
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	s := NewStore(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "alice")))
	require.NoError(t, s.Add(storeUser("id-2", "bob")))
	require.NoError(t, s.Save())

	reloaded := NewStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Count())

	alice := reloaded.GetByName("alice")
	require.NotNil(t, alice)
	assert.Equal(t, "id-1", alice.ID)
	assert.Equal(t, PermissionRead, alice.LevelFor(SystemCategory))
	assert.Nil(t, reloaded.GetByName("Alice"), "lookup is case sensitive")
}

func TestStoreSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	s := NewStore(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "alice")))
	require.NoError(t, s.Save())

	// No temp files survive a successful save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users.json", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewStore(path)
	err := s.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStoreCorrupt, errors.CodeOf(err))
}

func TestStoreAddDuplicates(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "alice")))

	err := s.Add(storeUser("id-2", "alice"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlreadyExists, errors.CodeOf(err))

	err = s.Add(storeUser("id-1", "carol"))
	require.Error(t, err)
}

func TestStoreUpdatePersistsAndSwapsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s := NewStore(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "alice")))
	require.NoError(t, s.Save())

	before := s.Get("id-1")
	require.NoError(t, s.Update("id-1", func(u *User) error {
		u.APIKeys = append(u.APIKeys, "key-1")
		return nil
	}))

	// The previously handed-out record is untouched; the store holds a
	// fresh copy carrying the change.
	assert.Empty(t, before.APIKeys)
	after := s.Get("id-1")
	assert.NotSame(t, before, after)
	assert.Equal(t, []string{"key-1"}, after.APIKeys)

	reloaded := NewStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, []string{"key-1"}, reloaded.Get("id-1").APIKeys)
}

func TestStoreUpdateFailureLeavesRecord(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "alice")))

	rejected := errors.NewValidationError("nope")
	err := s.Update("id-1", func(u *User) error {
		u.APIKeys = append(u.APIKeys, "key-1")
		return rejected
	})
	assert.Equal(t, rejected, err)
	assert.Empty(t, s.Get("id-1").APIKeys)

	err = s.Update("missing", func(u *User) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestStoreRemove(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "alice")))

	assert.True(t, s.Remove("id-1"))
	assert.Nil(t, s.Get("id-1"))
	assert.Nil(t, s.GetByName("alice"))
	assert.False(t, s.Remove("id-1"))
}

func TestStoreFileIsSortedByUsername(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s := NewStore(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(storeUser("id-1", "zoe")))
	require.NoError(t, s.Add(storeUser("id-2", "alice")))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), "alice"), strings.Index(string(data), "zoe"))
}
