package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.SecurityEnabled)
	assert.Equal(t, 1, cfg.DefaultPermissions["system"])
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
}

func TestValidate(t *testing.T) {
	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := DefaultRuntimeConfig()
		cfg.LogLevel = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects out-of-range default permission", func(t *testing.T) {
		cfg := DefaultRuntimeConfig()
		cfg.DefaultPermissions = map[string]int{"files": 7}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out-of-range")
	})

	t.Run("empty log level is allowed", func(t *testing.T) {
		cfg := DefaultRuntimeConfig()
		cfg.LogLevel = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("hand-built config validates concurrently", func(t *testing.T) {
		cfg := &RuntimeConfig{LogLevel: "debug"}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, cfg.Validate())
			}()
		}
		wg.Wait()
	})
}

func TestMerge(t *testing.T) {
	cfg := &RuntimeConfig{
		LogLevel:   "debug",
		ConfigDir:  "/etc/mcprun",
		LogDir:     "",
		ModulesDir: "",
	}
	cfg.Merge(DefaultRuntimeConfig())

	// Caller-supplied fields survive, zero fields come from defaults.
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/etc/mcprun", cfg.ConfigDir)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, "modules", cfg.ModulesDir)
	assert.Equal(t, "plugins", cfg.PluginsDir)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 1, cfg.DefaultPermissions["system"])
}

func TestFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	content := `
log_level: warn
config_dir: /var/lib/mcprun
security_enabled: true
default_permissions:
  system: 1
  files: 2
command_timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := &RuntimeConfig{}
	require.NoError(t, cfg.FromFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/var/lib/mcprun", cfg.ConfigDir)
	assert.True(t, cfg.SecurityEnabled)
	assert.Equal(t, 2, cfg.DefaultPermissions["files"])
	assert.Equal(t, 10*time.Second, cfg.CommandTimeout)
}

func TestFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")
	content := `{"log_level": "debug", "security_enabled": false}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := &RuntimeConfig{}
	require.NoError(t, cfg.FromFile(path))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.SecurityEnabled)
}

func TestFromFileErrors(t *testing.T) {
	cfg := &RuntimeConfig{}
	assert.Error(t, cfg.FromFile("runtime.toml"), "unsupported extension")
	assert.Error(t, cfg.FromFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestToYAMLFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "runtime.yaml")

	cfg := DefaultRuntimeConfig()
	cfg.LogLevel = "warn"
	require.NoError(t, cfg.ToYAMLFile(path))

	reloaded := &RuntimeConfig{}
	require.NoError(t, reloaded.FromFile(path))
	assert.Equal(t, "warn", reloaded.LogLevel)
	assert.Equal(t, cfg.ConfigDir, reloaded.ConfigDir)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	reloads := make(chan *RuntimeConfig, 1)
	stop := make(chan struct{})
	defer close(stop)

	cfg := &RuntimeConfig{}
	go func() {
		_ = cfg.Watch(path, stop, func(next *RuntimeConfig) {
			select {
			case reloads <- next:
			default:
			}
		})
	}()

	// Give the watcher a moment to attach before touching the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	select {
	case next := <-reloads:
		assert.Equal(t, "debug", next.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload was not observed")
	}
}
