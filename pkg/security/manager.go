package security

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/modelctl/mcprun/pkg/errors"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/logger"
)

// dummySalt is hashed against when a username is unknown so that the
// failure path stays uniform with the wrong-password path.
var dummySalt = make([]byte, saltSize)

type tokenEntry struct {
	userID    string
	expiresAt time.Time
}

// Manager owns user records, password hashing, session tokens and the
// symmetric encryption facility.
type Manager struct {
	config *Config
	logger interfaces.Logger
	store  *Store
	cipher *Cipher

	mu          sync.RWMutex
	tokens      map[string]tokenEntry
	initialized bool
}

// NewManager creates a security manager from a validated configuration
func NewManager(cfg *Config, log interfaces.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.NewConfigError("security configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}
	if log == nil {
		log = logger.NewLogger()
	}
	cipher, err := NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}
	return &Manager{
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "security"}),
		store:  NewStore(cfg.UsersFilePath),
		cipher: cipher,
		tokens: make(map[string]tokenEntry),
	}, nil
}

// Initialize loads the user store into memory. A corrupted or unreadable
// store is a fatal initialization failure; the runtime must refuse to mark
// itself initialized when security is enabled and this step fails.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		m.logger.Warn("security manager already initialized")
		return nil
	}
	if err := m.store.Load(); err != nil {
		m.logger.Error("failed to load user store", err, map[string]interface{}{
			"path": m.config.UsersFilePath,
		})
		return err
	}
	m.initialized = true
	m.logger.Info("security manager initialized", map[string]interface{}{
		"users": m.store.Count(),
	})
	return nil
}

// Initialized reports whether Initialize has completed
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

func (m *Manager) requireInitialized() error {
	if !m.Initialized() {
		return errors.NewNotInitializedError("security manager")
	}
	return nil
}

func (m *Manager) tokenTTL() time.Duration {
	return time.Duration(m.config.TokenExpiration) * time.Second
}

// CreateUser creates a user with the given credentials and default
// permissions, grants the implicit baseline READ on the system category,
// and persists the store atomically before returning.
func (m *Manager) CreateUser(username, password string, defaultPerms map[string]PermissionLevel) (*User, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, errors.NewValidationError("username is required")
	}
	if password == "" {
		return nil, errors.NewValidationError("password is required")
	}

	salt, err := generateSalt()
	if err != nil {
		return nil, errors.NewExecutionError(err.Error())
	}

	perms := make(map[string]PermissionLevel, len(defaultPerms)+1)
	for category, level := range defaultPerms {
		if !level.IsValid() {
			return nil, errors.NewValidationError(
				fmt.Sprintf("permission level %d for category %q out of range", int(level), category))
		}
		perms[category] = level
	}
	if perms[SystemCategory] < PermissionRead {
		perms[SystemCategory] = PermissionRead
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		Salt:         base64.StdEncoding.EncodeToString(salt),
		Permissions:  perms,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.store.Add(user); err != nil {
		return nil, err
	}
	if err := m.store.Save(); err != nil {
		// Keep memory consistent with disk when the persist fails.
		m.store.Remove(user.ID)
		return nil, err
	}

	m.logger.Info("user created", map[string]interface{}{
		"user_id":  user.ID,
		"username": username,
	})
	return user.Sanitized(), nil
}

// Authenticate verifies the credentials and issues a session token. The
// failure message is identical for an unknown username and a wrong
// password so callers cannot enumerate usernames.
func (m *Manager) Authenticate(username, password string) (*AuthResult, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}

	user := m.store.GetByName(username)
	if user == nil {
		// Burn a derivation anyway; the rejection must look the same.
		hashPassword(password, dummySalt)
		return nil, errors.NewAuthenticationFailedError()
	}

	salt, err := base64.StdEncoding.DecodeString(user.Salt)
	if err != nil {
		return nil, errors.NewStoreCorruptError(m.config.UsersFilePath, err)
	}
	if !verifyPassword(password, salt, user.PasswordHash) {
		return nil, errors.NewAuthenticationFailedError()
	}

	return m.issueSession(user)
}

// AuthenticateWithAPIKey issues a session token for the user holding the
// given API key, under the same token-issuance contract as Authenticate.
func (m *Manager) AuthenticateWithAPIKey(apiKey string) (*AuthResult, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	user := m.store.GetByAPIKey(apiKey)
	if user == nil {
		return nil, errors.NewAuthenticationFailedError()
	}
	return m.issueSession(user)
}

func (m *Manager) issueSession(user *User) (*AuthResult, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return nil, errors.NewExecutionError(err.Error())
	}
	expiresAt := time.Now().Add(m.tokenTTL())

	m.mu.Lock()
	m.tokens[token] = tokenEntry{userID: user.ID, expiresAt: expiresAt}
	m.mu.Unlock()

	now := time.Now().UTC()
	if err := m.store.Update(user.ID, func(u *User) error {
		u.LastLogin = &now
		return nil
	}); err != nil {
		m.mu.Lock()
		delete(m.tokens, token)
		m.mu.Unlock()
		return nil, err
	}

	m.logger.Info("user authenticated", map[string]interface{}{
		"user_id": user.ID,
	})
	return &AuthResult{UserID: user.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateToken reports whether the token is valid and returns the
// associated user ID. An expired token is treated as invalid and evicted
// on check; there is no background sweep.
func (m *Manager) ValidateToken(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tokens[token]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.tokens, token)
		return "", false
	}
	return entry.userID, true
}

// RevokeToken invalidates a session token, reporting whether it existed
func (m *Manager) RevokeToken(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[token]
	delete(m.tokens, token)
	return ok
}

// PurgeExpiredTokens removes expired tokens eagerly and returns the
// number removed. The contract remains lazy expiry; this is an optional
// housekeeping call for long-lived embedders.
func (m *Manager) PurgeExpiredTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	purged := 0
	for token, entry := range m.tokens {
		if now.After(entry.expiresAt) {
			delete(m.tokens, token)
			purged++
		}
	}
	return purged
}

// HasPermission reports whether the user is authorized for the required
// level on a category. ADMIN on the reserved admin category authorizes
// everything; otherwise the user's level for the category (default NONE)
// must be at least the required level.
func (m *Manager) HasPermission(userID, category string, required PermissionLevel) bool {
	user := m.store.Get(userID)
	if user == nil {
		return false
	}
	if user.LevelFor(AdminCategory) >= PermissionAdmin {
		return true
	}
	return user.LevelFor(category) >= required
}

// GetUser returns a sanitized copy of the user with the given ID
func (m *Manager) GetUser(userID string) (*User, error) {
	user := m.store.Get(userID)
	if user == nil {
		return nil, errors.NewValidationError("user not found")
	}
	return user.Sanitized(), nil
}

// GetUserByName returns a sanitized copy of the user with the given name
func (m *Manager) GetUserByName(username string) (*User, error) {
	user := m.store.GetByName(username)
	if user == nil {
		return nil, errors.NewValidationError("user not found")
	}
	return user.Sanitized(), nil
}

// ListUsers returns sanitized copies of every stored user
func (m *Manager) ListUsers() []*User {
	stored := m.store.List()
	out := make([]*User, 0, len(stored))
	for _, u := range stored {
		out = append(out, u.Sanitized())
	}
	return out
}

// AddAPIKey generates, persists and returns a fresh API key for the user
func (m *Manager) AddAPIKey(userID string) (string, error) {
	if err := m.requireInitialized(); err != nil {
		return "", err
	}
	key, err := newOpaqueToken()
	if err != nil {
		return "", errors.NewExecutionError(err.Error())
	}
	if err := m.store.Update(userID, func(u *User) error {
		u.APIKeys = append(u.APIKeys, key)
		return nil
	}); err != nil {
		return "", err
	}
	return key, nil
}

// RevokeAPIKey removes an API key from the user and persists the store
func (m *Manager) RevokeAPIKey(userID, key string) error {
	if err := m.requireInitialized(); err != nil {
		return err
	}
	return m.store.Update(userID, func(u *User) error {
		kept := make([]string, 0, len(u.APIKeys))
		found := false
		for _, k := range u.APIKeys {
			if k == key {
				found = true
				continue
			}
			kept = append(kept, k)
		}
		if !found {
			return errors.NewValidationError("api key not found")
		}
		u.APIKeys = kept
		return nil
	})
}

// Encrypt seals an opaque string with the configured key
func (m *Manager) Encrypt(plaintext string) (string, error) {
	return m.cipher.Encrypt(plaintext)
}

// Decrypt reverses Encrypt
func (m *Manager) Decrypt(ciphertext string) (string, error) {
	return m.cipher.Decrypt(ciphertext)
}

// accessClaims are the registered claims carried by signed access tokens
type accessClaims struct {
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an HS256 JWT for hosts that embed the runtime
// behind a transport and need a verifiable bearer credential rather than
// an opaque in-process token.
func (m *Manager) GenerateAccessToken(userID string) (string, error) {
	if m.store.Get(userID) == nil {
		return "", errors.NewValidationError("user not found")
	}
	now := time.Now()
	claims := &accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "mcprun",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL())),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.TokenSecret))
}

// ValidateAccessToken verifies a signed access token and returns the
// subject user ID.
func (m *Manager) ValidateAccessToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.config.TokenSecret), nil
	})
	if err != nil {
		return "", errors.NewInvalidTokenError()
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return "", errors.NewInvalidTokenError()
	}
	if m.store.Get(claims.Subject) == nil {
		return "", errors.NewInvalidTokenError()
	}
	return claims.Subject, nil
}
