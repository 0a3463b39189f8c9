// Package config provides configuration management for mcprun
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds the runtime-wide configuration: directory layout,
// logging, security toggle and default permissions for new users.
type RuntimeConfig struct {
	LogLevel   string `yaml:"log_level" json:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogDir     string `yaml:"log_dir" json:"log_dir" mapstructure:"log_dir"`
	ConfigDir  string `yaml:"config_dir" json:"config_dir" mapstructure:"config_dir"`
	ModulesDir string `yaml:"modules_dir" json:"modules_dir" mapstructure:"modules_dir"`
	PluginsDir string `yaml:"plugins_dir" json:"plugins_dir" mapstructure:"plugins_dir"`

	SecurityEnabled bool `yaml:"security_enabled" json:"security_enabled" mapstructure:"security_enabled"`

	// DefaultPermissions maps category names to permission level ordinals
	// granted to newly created users.
	DefaultPermissions map[string]int `yaml:"default_permissions" json:"default_permissions" mapstructure:"default_permissions"`

	// CommandTimeout bounds a single command body; zero disables the bound.
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout" mapstructure:"command_timeout"`

	mu        sync.RWMutex
	validator *validator.Validate
}

// DefaultRuntimeConfig returns the default runtime configuration
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		LogLevel:        "info",
		LogDir:          "logs",
		ConfigDir:       "config",
		ModulesDir:      "modules",
		PluginsDir:      "plugins",
		SecurityEnabled: true,
		DefaultPermissions: map[string]int{
			"system": 1,
		},
		CommandTimeout: 30 * time.Second,
		validator:      validator.New(),
	}
}

// Validate checks the configuration
func (c *RuntimeConfig) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := c.validator
	if v == nil {
		// Configs built by hand skip the constructor; validate with a
		// throwaway instance rather than writing the field under RLock.
		v = validator.New()
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid runtime configuration: %w", err)
	}
	for category, level := range c.DefaultPermissions {
		if level < 0 || level > 4 {
			return fmt.Errorf("invalid runtime configuration: default permission %q has out-of-range level %d", category, level)
		}
	}
	return nil
}

// Merge fills zero-valued fields of c from other, so caller-supplied
// options override defaults field by field.
func (c *RuntimeConfig) Merge(defaults *RuntimeConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogDir == "" {
		c.LogDir = defaults.LogDir
	}
	if c.ConfigDir == "" {
		c.ConfigDir = defaults.ConfigDir
	}
	if c.ModulesDir == "" {
		c.ModulesDir = defaults.ModulesDir
	}
	if c.PluginsDir == "" {
		c.PluginsDir = defaults.PluginsDir
	}
	if c.DefaultPermissions == nil {
		c.DefaultPermissions = defaults.DefaultPermissions
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaults.CommandTimeout
	}
}

// FromFile loads configuration from a JSON or YAML file, inferred from
// the file extension.
func (c *RuntimeConfig) FromFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(path)
	switch filepath.Ext(path) {
	case ".json":
		v.SetConfigType("json")
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return v.Unmarshal(c)
}

// ToYAMLFile saves the configuration to a YAML file
func (c *RuntimeConfig) ToYAMLFile(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Watch reloads the configuration whenever the file at path changes and
// invokes callback with the reloaded config. It blocks until stop is
// closed or the watcher fails; run it in its own goroutine.
func (c *RuntimeConfig) Watch(path string, stop <-chan struct{}, callback func(*RuntimeConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded := DefaultRuntimeConfig()
			if err := reloaded.FromFile(path); err != nil {
				continue
			}
			if err := reloaded.Validate(); err != nil {
				continue
			}
			callback(reloaded)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watcher failed: %w", err)
		case <-stop:
			return nil
		}
	}
}
