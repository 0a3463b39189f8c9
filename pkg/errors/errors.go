// Package errors provides structured error handling for the mcprun runtime
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/modelctl/mcprun/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Runtime lifecycle errors
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCodeShutdown       ErrorCode = "SHUTDOWN"

	// Invocation errors
	ErrCodeParse      ErrorCode = "PARSE_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Resource errors
	ErrCodeModuleNotFound  ErrorCode = "MODULE_NOT_FOUND"
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeAlreadyExists   ErrorCode = "ALREADY_EXISTS"

	// Authorization errors
	ErrCodeAuthRequired           ErrorCode = "AUTH_REQUIRED"
	ErrCodeInsufficientPermission ErrorCode = "INSUFFICIENT_PERMISSION"
	ErrCodeAuthenticationFailed   ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeInvalidToken           ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired           ErrorCode = "TOKEN_EXPIRED"

	// Execution errors
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
	ErrCodeTimeout   ErrorCode = "TIMEOUT"

	// Persistence errors
	ErrCodePersistence   ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeStoreCorrupt  ErrorCode = "STORE_CORRUPT"
	ErrCodeConfigError   ErrorCode = "CONFIG_ERROR"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// RuntimeError represents a structured error in mcprun
type RuntimeError struct {
	Type    types.ErrorType        `json:"type"`
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *RuntimeError) WithDetail(key string, value interface{}) *RuntimeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new runtime error
func New(errType types.ErrorType, code ErrorCode, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewWithCause creates a new runtime error wrapping a cause
func NewWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Lifecycle error constructors

func NewNotInitializedError(component string) *RuntimeError {
	return New(types.ErrorTypeInternal, ErrCodeNotInitialized,
		fmt.Sprintf("%s is not initialized", component)).WithDetail("component", component)
}

func NewShutdownError(component string) *RuntimeError {
	return New(types.ErrorTypeInternal, ErrCodeShutdown,
		fmt.Sprintf("%s has been shut down", component)).WithDetail("component", component)
}

// Invocation error constructors

func NewParseError(message string) *RuntimeError {
	return New(types.ErrorTypeValidation, ErrCodeParse, message)
}

func NewValidationError(message string) *RuntimeError {
	return New(types.ErrorTypeValidation, ErrCodeValidation, message)
}

// Resource error constructors

func NewModuleNotFoundError(module string) *RuntimeError {
	return New(types.ErrorTypeNotFound, ErrCodeModuleNotFound,
		fmt.Sprintf("module not found: %s", module)).WithDetail("module", module)
}

func NewCommandNotFoundError(module, command string) *RuntimeError {
	return New(types.ErrorTypeNotFound, ErrCodeCommandNotFound,
		fmt.Sprintf("command not found: %s.%s", module, command)).
		WithDetail("module", module).WithDetail("command", command)
}

func NewAlreadyExistsError(resource string) *RuntimeError {
	return New(types.ErrorTypeValidation, ErrCodeAlreadyExists,
		fmt.Sprintf("%s already exists", resource)).WithDetail("resource", resource)
}

// Authorization error constructors

func NewAuthRequiredError(qualified string) *RuntimeError {
	return New(types.ErrorTypeUnauthorized, ErrCodeAuthRequired,
		fmt.Sprintf("authentication required for %s", qualified))
}

// NewInsufficientPermissionError names the offending command but never the
// specific permission that was missing.
func NewInsufficientPermissionError(qualified string) *RuntimeError {
	return New(types.ErrorTypeUnauthorized, ErrCodeInsufficientPermission,
		fmt.Sprintf("insufficient permissions for %s", qualified))
}

func NewAuthenticationFailedError() *RuntimeError {
	return New(types.ErrorTypeUnauthorized, ErrCodeAuthenticationFailed,
		"invalid username or password")
}

func NewInvalidTokenError() *RuntimeError {
	return New(types.ErrorTypeUnauthorized, ErrCodeInvalidToken, "invalid token")
}

func NewTokenExpiredError() *RuntimeError {
	return New(types.ErrorTypeUnauthorized, ErrCodeTokenExpired, "token has expired")
}

// Execution error constructors

func NewExecutionError(message string) *RuntimeError {
	return New(types.ErrorTypeInternal, ErrCodeExecution, message)
}

func NewTimeoutError(operation string) *RuntimeError {
	return New(types.ErrorTypeInternal, ErrCodeTimeout,
		fmt.Sprintf("%s timed out", operation)).WithDetail("operation", operation)
}

// Persistence error constructors

func NewPersistenceError(message string, cause error) *RuntimeError {
	return NewWithCause(types.ErrorTypeInternal, ErrCodePersistence, message, cause)
}

func NewStoreCorruptError(path string, cause error) *RuntimeError {
	return NewWithCause(types.ErrorTypeInternal, ErrCodeStoreCorrupt,
		fmt.Sprintf("store file corrupted: %s", path), cause).WithDetail("path", path)
}

func NewConfigError(message string) *RuntimeError {
	return New(types.ErrorTypeValidation, ErrCodeConfigError, message)
}

func NewConfigInvalidError(message string) *RuntimeError {
	return New(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// IsRuntimeError checks if an error is a RuntimeError anywhere in its chain
func IsRuntimeError(err error) bool {
	var rerr *RuntimeError
	return stderrors.As(err, &rerr)
}

// GetRuntimeError extracts a RuntimeError from an error chain
func GetRuntimeError(err error) *RuntimeError {
	var rerr *RuntimeError
	if stderrors.As(err, &rerr) {
		return rerr
	}
	return nil
}

// CodeOf returns the error code of err, or ErrCodeExecution for plain errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if rerr := GetRuntimeError(err); rerr != nil {
		return rerr.Code
	}
	return ErrCodeExecution
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*RuntimeError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	var messages []string
	for _, err := range el.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *RuntimeError) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{Errors: make([]*RuntimeError, 0)}
}
