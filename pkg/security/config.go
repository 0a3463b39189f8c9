package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the persisted security configuration (security.json).
// Secrets are generated randomly on first run and persisted so that
// tokens and ciphertexts survive restarts.
type Config struct {
	UsersFilePath string `json:"usersFilePath"`
	TokenSecret   string `json:"tokenSecret"`
	// TokenExpiration is the session token lifetime in seconds.
	TokenExpiration int64  `json:"tokenExpiration"`
	EncryptionKey   string `json:"encryptionKey"`
}

// DefaultTokenExpiration is the session token lifetime applied when a
// fresh configuration is generated (24 hours).
const DefaultTokenExpiration int64 = 24 * 60 * 60

// Validate checks that the configuration is complete
func (c *Config) Validate() error {
	if c.UsersFilePath == "" {
		return fmt.Errorf("usersFilePath is required")
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("tokenSecret is required")
	}
	if c.TokenExpiration <= 0 {
		return fmt.Errorf("tokenExpiration must be positive")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("encryptionKey is required")
	}
	return nil
}

// LoadOrCreateConfig reads security.json from path, generating a fresh
// configuration with random secrets on first run and persisting it.
func LoadOrCreateConfig(path, usersFilePath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		cfg := &Config{}
		if uerr := json.Unmarshal(data, cfg); uerr != nil {
			return nil, fmt.Errorf("failed to parse security config %s: %w", path, uerr)
		}
		if verr := cfg.Validate(); verr != nil {
			return nil, fmt.Errorf("invalid security config %s: %w", path, verr)
		}
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read security config %s: %w", path, err)
	}

	tokenSecret, err := randomSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	encryptionKey, err := randomSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	cfg := &Config{
		UsersFilePath:   usersFilePath,
		TokenSecret:     tokenSecret,
		TokenExpiration: DefaultTokenExpiration,
		EncryptionKey:   encryptionKey,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal security config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write security config: %w", err)
	}
	return cfg, nil
}
