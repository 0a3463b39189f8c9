// Package command implements the capability contract: named, versioned
// units of work with declared auth requirements and a uniform execution
// wrapper.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/logger"
	"github.com/modelctl/mcprun/pkg/types"
)

// Meta is the immutable metadata of a command.
type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Version     string `json:"version"`
	// RequiresAuth marks the command as runnable only by authenticated callers
	RequiresAuth bool `json:"requires_auth"`
	// Permissions lists required permission strings, "<category>.<levelOrdinal>"
	Permissions []string `json:"permissions,omitempty"`
}

// ValidateFunc checks parameters before execution
type ValidateFunc func(params types.Params) bool

// HandlerFunc is a command body. It may return an error or panic; the
// execution wrapper converts both into failure results.
type HandlerFunc func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult

// Option configures a command
type Option func(*Base)

// WithValidator attaches a parameter validator that runs before the body
func WithValidator(fn ValidateFunc) Option {
	return func(b *Base) { b.validate = fn }
}

// WithLogger overrides the command's logger
func WithLogger(log interfaces.Logger) Option {
	return func(b *Base) { b.logger = log }
}

// Base is the standard command implementation. Its Execute wraps the body
// with validation, logging, panic capture and timing so that every
// invocation yields exactly one CommandResult.
type Base struct {
	meta     Meta
	handler  HandlerFunc
	validate ValidateFunc
	logger   interfaces.Logger
}

// New creates a command from metadata and a body
func New(meta Meta, handler HandlerFunc, opts ...Option) *Base {
	b := &Base{
		meta:    meta,
		handler: handler,
		logger:  logger.NewLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the command name
func (b *Base) Name() string { return b.meta.Name }

// Description returns the command description
func (b *Base) Description() string { return b.meta.Description }

// Category returns the command's permission category
func (b *Base) Category() string { return b.meta.Category }

// Version returns the command version
func (b *Base) Version() string { return b.meta.Version }

// RequiresAuth reports whether the command needs an authenticated caller
func (b *Base) RequiresAuth() bool { return b.meta.RequiresAuth }

// RequiredPermissions returns the declared permission strings
func (b *Base) RequiredPermissions() []string { return b.meta.Permissions }

// Meta returns a copy of the command metadata
func (b *Base) Meta() Meta { return b.meta }

// Validate runs the attached parameter validator, if any
func (b *Base) Validate(params types.Params) bool {
	if b.validate == nil {
		return true
	}
	return b.validate(params)
}

// Execute runs the command body under the uniform contract: validation
// short-circuits to a failure result, a panicking body becomes a failure
// result carrying the panic message, a context deadline surfaces as a
// timeout failure, and timestamp/executionTime are stamped on every result.
func (b *Base) Execute(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
	start := time.Now()
	fields := map[string]interface{}{
		"command": b.meta.Name,
	}
	if cctx != nil {
		fields["session_id"] = cctx.SessionID
		if cctx.UserID != "" {
			fields["user_id"] = cctx.UserID
		}
	}
	b.logger.Debug("command execution started", fields)

	result := b.run(ctx, params, cctx, start)
	result.Timestamp = start.UnixMilli()
	result.ExecutionTime = time.Since(start).Milliseconds()

	fields["success"] = result.Success
	fields["duration_ms"] = result.ExecutionTime
	if result.Success {
		b.logger.Debug("command execution finished", fields)
	} else {
		fields["error"] = result.Error
		b.logger.Warn("command execution failed", fields)
	}
	return result
}

func (b *Base) run(ctx context.Context, params types.Params, cctx *types.CommandContext, start time.Time) *types.CommandResult {
	if !b.Validate(params) {
		return types.NewFailureResult(fmt.Sprintf("parameter validation failed for command %q", b.meta.Name))
	}
	if b.handler == nil {
		return types.NewFailureResult(fmt.Sprintf("command %q has no handler", b.meta.Name))
	}

	done := make(chan *types.CommandResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- types.NewFailureResult(fmt.Sprintf("%v", r))
			}
		}()
		res := b.handler(ctx, params, cctx)
		if res == nil {
			res = types.NewFailureResult(fmt.Sprintf("command %q returned no result", b.meta.Name))
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		// The body keeps running until it observes the context, but the
		// dispatch never hangs on it.
		if ctx.Err() == context.DeadlineExceeded {
			return types.NewFailureResult(fmt.Sprintf("command %q timed out", b.meta.Name))
		}
		return types.NewFailureResult(fmt.Sprintf("command %q canceled", b.meta.Name))
	}
}

var _ interfaces.Command = (*Base)(nil)
