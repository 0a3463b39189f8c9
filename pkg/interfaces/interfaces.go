// Package interfaces defines the core interfaces for mcprun components
package interfaces

import (
	"context"

	"github.com/modelctl/mcprun/pkg/types"
)

// Command defines a single named, invocable operation with declared
// authentication and permission requirements.
type Command interface {
	// Name returns the command name, unique within its module
	Name() string

	// Description returns the human-readable command description
	Description() string

	// Category returns the permission category the command belongs to
	Category() string

	// Version returns the command version
	Version() string

	// RequiresAuth reports whether the command may only run for
	// authenticated callers
	RequiresAuth() bool

	// RequiredPermissions returns the declared permission strings of the
	// form "<category>.<levelOrdinal>"
	RequiredPermissions() []string

	// Validate checks parameters before execution; a false return
	// short-circuits dispatch to a failure result
	Validate(params types.Params) bool

	// Execute runs the command. Implementations must return exactly one
	// result and never panic across this boundary.
	Execute(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult
}

// Module is a named collection of commands with its own lifecycle.
type Module interface {
	// Name returns the module name
	Name() string

	// Version returns the module's semantic version
	Version() string

	// Author returns the module author
	Author() string

	// Dependencies returns the names of modules this module depends on
	Dependencies() []string

	// Initialized reports whether Initialize has completed
	Initialized() bool

	// Initialize performs module-specific setup, registering built-in
	// commands. Re-initializing is a warned no-op.
	Initialize(ctx context.Context, options types.Params) error

	// Shutdown tears the module down exactly once
	Shutdown(ctx context.Context) error

	// RegisterCommand adds a command; the first registration of a name wins
	RegisterCommand(cmd Command) error

	// UnregisterCommand removes a command, reporting whether it was present
	UnregisterCommand(name string) bool

	// GetCommand looks up a command, returning nil when absent
	GetCommand(name string) Command

	// ListCommands returns the registered command names
	ListCommands() []string

	// ExecuteCommand validates and runs a registered command
	ExecuteCommand(ctx context.Context, name string, params types.Params, cctx *types.CommandContext) *types.CommandResult
}

// Event is a broadcast payload delivered to every loaded plugin.
type Event struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Data      types.Params `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Plugin is a higher-order unit that contributes one or more modules and
// receives broadcast events.
type Plugin interface {
	// Name returns the plugin name
	Name() string

	// Version returns the plugin version
	Version() string

	// Modules returns the modules this plugin provides
	Modules() []Module

	// HandleEvent processes a broadcast event; a failure is isolated to
	// this plugin and never interrupts delivery to the rest
	HandleEvent(ctx context.Context, event Event) error

	// Shutdown releases plugin resources
	Shutdown(ctx context.Context) error
}

// Logger defines the interface for logging implementations
type Logger interface {
	// Debug logs debug level messages
	Debug(msg string, fields ...map[string]interface{})

	// Info logs info level messages
	Info(msg string, fields ...map[string]interface{})

	// Warn logs warning level messages
	Warn(msg string, fields ...map[string]interface{})

	// Error logs error level messages
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs fatal level messages and exits
	Fatal(msg string, err error, fields ...map[string]interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the interface for metrics collection
type Metrics interface {
	// Counter increments a counter metric
	Counter(name string, value float64, labels map[string]string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, labels map[string]string)

	// Histogram records a histogram metric
	Histogram(name string, value float64, labels map[string]string)

	// Timer records timing metrics
	Timer(name string, duration float64, labels map[string]string)
}
