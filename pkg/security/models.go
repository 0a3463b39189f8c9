// Package security provides identity, authentication, authorization and
// at-rest encryption for the mcprun runtime.
package security

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PermissionLevel is an ordered capability tier scoped to a named category.
// A higher level implies every lower level within the same category.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionRead
	PermissionWrite
	PermissionExecute
	PermissionAdmin
)

// AdminCategory is the reserved category; ADMIN on it authorizes everything.
const AdminCategory = "admin"

// SystemCategory is the category every new user receives baseline READ on.
const SystemCategory = "system"

// IsValid reports whether the level is within the defined range
func (l PermissionLevel) IsValid() bool {
	return l >= PermissionNone && l <= PermissionAdmin
}

// String returns the level name
func (l PermissionLevel) String() string {
	switch l {
	case PermissionNone:
		return "none"
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionExecute:
		return "execute"
	case PermissionAdmin:
		return "admin"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParsePermission splits a declared permission string of the form
// "<category>.<levelOrdinal>" and validates the ordinal against the
// PermissionLevel range. Malformed strings are an error; they must be
// rejected at registration time rather than failing silently at dispatch.
func ParsePermission(s string) (string, PermissionLevel, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return "", PermissionNone, fmt.Errorf("malformed permission string %q, want \"category.level\"", s)
	}
	category := s[:idx]
	ordinal, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", PermissionNone, fmt.Errorf("malformed permission level in %q: %v", s, err)
	}
	level := PermissionLevel(ordinal)
	if !level.IsValid() {
		return "", PermissionNone, fmt.Errorf("permission level %d in %q out of range [0,4]", ordinal, s)
	}
	return category, level, nil
}

// User is an identity record in the user store.
type User struct {
	ID           string                     `json:"id"`
	Username     string                     `json:"username"`
	PasswordHash string                     `json:"password_hash"`
	Salt         string                     `json:"salt"`
	Permissions  map[string]PermissionLevel `json:"permissions"`
	APIKeys      []string                   `json:"api_keys,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	LastLogin    *time.Time                 `json:"last_login,omitempty"`
}

// Sanitized returns a copy of the user with credential material removed.
// Error payloads and command results must never carry hashes or salts.
func (u *User) Sanitized() *User {
	clone := *u
	clone.PasswordHash = ""
	clone.Salt = ""
	clone.APIKeys = nil
	clone.Permissions = make(map[string]PermissionLevel, len(u.Permissions))
	for k, v := range u.Permissions {
		clone.Permissions[k] = v
	}
	return &clone
}

// clone returns a full deep copy of the user, credentials included
func (u *User) clone() *User {
	copied := *u
	copied.Permissions = make(map[string]PermissionLevel, len(u.Permissions))
	for k, v := range u.Permissions {
		copied.Permissions[k] = v
	}
	copied.APIKeys = append([]string(nil), u.APIKeys...)
	if u.LastLogin != nil {
		t := *u.LastLogin
		copied.LastLogin = &t
	}
	return &copied
}

// HasAPIKey reports whether key belongs to the user
func (u *User) HasAPIKey(key string) bool {
	for _, k := range u.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}

// LevelFor returns the user's level for a category, defaulting to NONE.
func (u *User) LevelFor(category string) PermissionLevel {
	if lvl, ok := u.Permissions[category]; ok {
		return lvl
	}
	return PermissionNone
}

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
