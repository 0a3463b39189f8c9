// Package module implements the base Module abstraction: a name-keyed
// registry of commands with a guarded init/shutdown lifecycle.
package module

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/modelctl/mcprun/pkg/errors"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/logger"
	"github.com/modelctl/mcprun/pkg/security"
	"github.com/modelctl/mcprun/pkg/types"
)

// SetupFunc performs module-specific initialization, typically registering
// the module's built-in commands.
type SetupFunc func(ctx context.Context, m *Base, options types.Params) error

// TeardownFunc releases module-specific resources
type TeardownFunc func(ctx context.Context, m *Base) error

// Option configures a module
type Option func(*Base)

// WithDependencies declares the modules this module depends on
func WithDependencies(deps ...string) Option {
	return func(b *Base) { b.dependencies = deps }
}

// WithLogger overrides the module's logger
func WithLogger(log interfaces.Logger) Option {
	return func(b *Base) { b.logger = log }
}

// WithMetrics attaches a metrics collector
func WithMetrics(m interfaces.Metrics) Option {
	return func(b *Base) { b.metrics = m }
}

// WithSetup attaches the module-specific initialize hook
func WithSetup(fn SetupFunc) Option {
	return func(b *Base) { b.setup = fn }
}

// WithTeardown attaches the module-specific shutdown hook
func WithTeardown(fn TeardownFunc) Option {
	return func(b *Base) { b.teardown = fn }
}

// Base is the standard module implementation.
type Base struct {
	name         string
	version      string
	author       string
	dependencies []string
	logger       interfaces.Logger
	metrics      interfaces.Metrics
	setup        SetupFunc
	teardown     TeardownFunc

	// lifecycleMu serializes Initialize and Shutdown end to end; it is
	// never held while commands execute, so setup and teardown hooks may
	// take mu through RegisterCommand and friends.
	lifecycleMu sync.Mutex

	mu          sync.RWMutex
	commands    map[string]interfaces.Command
	initialized bool
}

// New creates a module with the given identity
func New(name, version, author string, opts ...Option) *Base {
	b := &Base{
		name:     name,
		version:  version,
		author:   author,
		logger:   logger.NewLogger(),
		commands: make(map[string]interfaces.Command),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithFields(map[string]interface{}{"module": name})
	return b
}

// Name returns the module name
func (b *Base) Name() string { return b.name }

// Version returns the module's semantic version
func (b *Base) Version() string { return b.version }

// Author returns the module author
func (b *Base) Author() string { return b.author }

// Dependencies returns the declared module dependencies
func (b *Base) Dependencies() []string { return b.dependencies }

// Initialized reports whether the module has been initialized
func (b *Base) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// Initialize runs the module's setup exactly once. Re-initializing an
// already-initialized module is a warned no-op, not an error.
func (b *Base) Initialize(ctx context.Context, options types.Params) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.Initialized() {
		b.logger.Warn("module already initialized")
		return nil
	}

	if b.setup != nil {
		if err := b.setup(ctx, b, options); err != nil {
			return fmt.Errorf("module %q initialization failed: %w", b.name, err)
		}
	}

	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()

	b.logger.Info("module initialized", map[string]interface{}{
		"version":  b.version,
		"commands": len(b.ListCommands()),
	})
	return nil
}

// Shutdown tears the module down exactly once; repeated shutdowns warn.
func (b *Base) Shutdown(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if !b.Initialized() {
		b.logger.Warn("module not initialized, nothing to shut down")
		return nil
	}
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()

	if b.teardown != nil {
		if err := b.teardown(ctx, b); err != nil {
			return fmt.Errorf("module %q shutdown failed: %w", b.name, err)
		}
	}
	b.logger.Info("module shut down")
	return nil
}

// RegisterCommand adds a command to the module. The first registration of
// a name wins; a duplicate is a warned no-op. Declared permission strings
// are validated here so an out-of-range level is a registration error
// instead of a silent runtime failure.
func (b *Base) RegisterCommand(cmd interfaces.Command) error {
	if cmd == nil {
		return errors.NewValidationError("command is required")
	}
	if cmd.Name() == "" {
		return errors.NewValidationError("command name is required")
	}
	for _, perm := range cmd.RequiredPermissions() {
		if _, _, err := security.ParsePermission(perm); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("command %q declares invalid permission: %v", cmd.Name(), err))
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.commands[cmd.Name()]; exists {
		b.logger.Warn("command already registered, keeping existing", map[string]interface{}{
			"command": cmd.Name(),
		})
		return nil
	}
	b.commands[cmd.Name()] = cmd
	return nil
}

// UnregisterCommand removes a command, warning when it is absent
func (b *Base) UnregisterCommand(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.commands[name]; !exists {
		b.logger.Warn("command not registered", map[string]interface{}{"command": name})
		return false
	}
	delete(b.commands, name)
	return true
}

// GetCommand looks a command up, returning nil when absent
func (b *Base) GetCommand(name string) interfaces.Command {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commands[name]
}

// ListCommands returns the registered command names, sorted
func (b *Base) ListCommands() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteCommand looks up and runs a registered command. An unknown name
// or a validation rejection yields a failure result without invoking the
// body; otherwise the command's own execution wrapper guarantees a result.
func (b *Base) ExecuteCommand(ctx context.Context, name string, params types.Params, cctx *types.CommandContext) *types.CommandResult {
	start := time.Now()

	cmd := b.GetCommand(name)
	if cmd == nil {
		return types.NewFailureResult(
			fmt.Sprintf("command %q not found in module %q", name, b.name))
	}
	if !cmd.Validate(params) {
		return types.NewFailureResult(
			fmt.Sprintf("parameter validation failed for command %q", name))
	}

	result := cmd.Execute(ctx, params, cctx)

	elapsed := time.Since(start)
	if b.metrics != nil {
		b.metrics.Timer("module_command_duration_ms", float64(elapsed.Milliseconds()), map[string]string{
			"module":  b.name,
			"command": name,
		})
	}
	b.logger.Debug("module dispatch complete", map[string]interface{}{
		"command":     name,
		"success":     result.Success,
		"duration_ms": elapsed.Milliseconds(),
	})
	return result
}

var _ interfaces.Module = (*Base)(nil)
