// Package types defines the core types shared across the mcprun runtime.
package types

import (
	"time"
)

// ErrorType represents the broad category of a runtime error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// Params is the open parameter bag passed to every command invocation.
// Values are JSON-shaped: string, float64, bool, nil, map[string]interface{}
// or []interface{}, matching what the invocation grammar can produce.
type Params map[string]interface{}

// GetString returns the string value for key, or the fallback if the key
// is absent or holds a non-string value.
func (p Params) GetString(key, fallback string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// GetInt returns the integer value for key. JSON numbers decode as float64,
// so both numeric representations are accepted.
func (p Params) GetInt(key string, fallback int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// GetBool returns the boolean value for key, or the fallback.
func (p Params) GetBool(key string, fallback bool) bool {
	if v, ok := p[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// SecurityContext carries the caller's authentication state through a dispatch.
type SecurityContext struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	Token           string `json:"token,omitempty"`
}

// CommandContext is the per-invocation caller identity and environment.
// It is supplied by the caller for every invocation and must not be
// mutated for the duration of one dispatch.
type CommandContext struct {
	UserID           string            `json:"user_id,omitempty"`
	SessionID        string            `json:"session_id"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	Security         SecurityContext   `json:"security_context"`
}

// CommandResult is the uniform outcome of every dispatch. Exactly one
// result is produced per invocation, success or failure; the runtime never
// panics across the dispatch boundary.
type CommandResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Timestamp is the invocation start in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// ExecutionTime is the wall-clock duration in milliseconds.
	ExecutionTime int64 `json:"executionTime,omitempty"`
}

// NewSuccessResult builds a success result stamped with the current time.
func NewSuccessResult(data interface{}) *CommandResult {
	return &CommandResult{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewFailureResult builds a failure result stamped with the current time.
func NewFailureResult(errMsg string) *CommandResult {
	return &CommandResult{
		Success:   false,
		Error:     errMsg,
		Timestamp: time.Now().UnixMilli(),
	}
}
