package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		input    string
		category string
		level    PermissionLevel
		wantErr  bool
	}{
		{"system.1", "system", PermissionRead, false},
		{"files.2", "files", PermissionWrite, false},
		{"admin.4", "admin", PermissionAdmin, false},
		{"network.0", "network", PermissionNone, false},
		// A dotted category keeps everything before the last separator.
		{"fs.local.3", "fs.local", PermissionExecute, false},
		{"system.5", "", PermissionNone, true},
		{"system.-1", "", PermissionNone, true},
		{"system.read", "", PermissionNone, true},
		{"system", "", PermissionNone, true},
		{".1", "", PermissionNone, true},
		{"system.", "", PermissionNone, true},
		{"", "", PermissionNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			category, level, err := ParsePermission(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestPermissionLevelOrdering(t *testing.T) {
	assert.True(t, PermissionAdmin > PermissionExecute)
	assert.True(t, PermissionExecute > PermissionWrite)
	assert.True(t, PermissionWrite > PermissionRead)
	assert.True(t, PermissionRead > PermissionNone)

	assert.True(t, PermissionLevel(4).IsValid())
	assert.False(t, PermissionLevel(5).IsValid())
	assert.False(t, PermissionLevel(-1).IsValid())
}

func TestUserSanitized(t *testing.T) {
	u := &User{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: "hash",
		Salt:         "salt",
		APIKeys:      []string{"key"},
		Permissions:  map[string]PermissionLevel{"files": PermissionWrite},
	}

	clean := u.Sanitized()
	assert.Empty(t, clean.PasswordHash)
	assert.Empty(t, clean.Salt)
	assert.Empty(t, clean.APIKeys)
	assert.Equal(t, "alice", clean.Username)

	// Mutating the copy's permissions must not leak back.
	clean.Permissions["files"] = PermissionNone
	assert.Equal(t, PermissionWrite, u.Permissions["files"])
}
