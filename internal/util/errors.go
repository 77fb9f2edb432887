// Package util provides shared helpers for the clusterdesk main process.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ConfigError, ClusterError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common sentinel errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrClusterRequired = errors.New("request is not bound to a cluster")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrClusterUnavail  = errors.New("cluster unavailable")
	ErrConfigInvalid   = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (fields: %v)", e.Message, e.Fields)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField adds a field error.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// HasErrors reports whether any field error was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// ClusterError represents a failure while talking to a managed cluster.
type ClusterError struct {
	ClusterID string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *ClusterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cluster %s: %s: %v", e.ClusterID, e.Message, e.Cause)
	}
	return fmt.Sprintf("cluster %s: %s", e.ClusterID, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClusterError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ClusterError) Is(target error) bool {
	if target == ErrClusterUnavail {
		return true
	}
	_, ok := target.(*ClusterError)
	return ok || errors.Is(e.Cause, target)
}

// NewClusterError creates a new ClusterError.
func NewClusterError(clusterID, message string, cause error) *ClusterError {
	return &ClusterError{ClusterID: clusterID, Message: message, Cause: cause}
}

// RateLimitError represents a rate limit exceeded error.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (retry after: %v)", e.Key, e.RetryAfter)
}

// Is checks if the error matches the target.
func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimited {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(key string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Key: key, RetryAfter: retryAfter}
}

// CircuitOpenError represents a circuit breaker open error.
type CircuitOpenError struct {
	Name  string
	State string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is %s", e.Name, e.State)
}

// Is checks if the error matches the target.
func (e *CircuitOpenError) Is(target error) bool {
	if target == ErrCircuitOpen {
		return true
	}
	_, ok := target.(*CircuitOpenError)
	return ok
}

// NewCircuitOpenError creates a new CircuitOpenError.
func NewCircuitOpenError(name, state string) *CircuitOpenError {
	return &CircuitOpenError{Name: name, State: state}
}

// StatusCodeFor maps well-known errors to HTTP status codes.
// Unknown errors map to 0 so callers can apply their own default.
func StatusCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrClusterUnavail):
		return http.StatusBadGateway
	default:
		return 0
	}
}
