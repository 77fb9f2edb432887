package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for proxy operations.
var (
	// ErrNoCluster indicates that the request is not bound to a cluster.
	ErrNoCluster = errors.New("request is not bound to a cluster")

	// ErrInvalidServer indicates that the cluster server URL is unusable.
	ErrInvalidServer = errors.New("invalid cluster server URL")

	// ErrUpstreamUnavailable indicates that the API server could not be reached.
	ErrUpstreamUnavailable = errors.New("cluster API server unavailable")
)

// ProxyError describes a failed proxy operation for one cluster.
type ProxyError struct {
	Op        string
	ClusterID string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("proxy error [%s] cluster=%s: %s: %v", e.Op, e.ClusterID, e.Message, e.Cause)
	}
	return fmt.Sprintf("proxy error [%s] cluster=%s: %s", e.Op, e.ClusterID, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProxyError) Is(target error) bool {
	_, ok := target.(*ProxyError)
	return ok || errors.Is(e.Cause, target)
}

// NewProxyError creates a new ProxyError.
func NewProxyError(op, clusterID, message string, cause error) *ProxyError {
	return &ProxyError{
		Op:        op,
		ClusterID: clusterID,
		Message:   message,
		Cause:     cause,
	}
}

// errorBody is the JSON body written for proxy failures.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   http.StatusText(status),
		Message: message,
	})
}
