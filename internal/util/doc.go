// Package util provides shared helpers for the clusterdesk main process.
//
// # Error Types
//
// Structured error types for consistent error handling:
//
//   - ConfigError: configuration errors
//   - ValidationError: request or configuration validation failures
//   - ClusterError: failures talking to a managed cluster
//   - Common sentinel errors: ErrNotFound, ErrClusterRequired, etc.
//
// # Context Helpers
//
// Context utilities for request-scoped data:
//
//	ctx = util.ContextWithRoute(ctx, "get /version")
//	route := util.RouteFromContext(ctx)
package util
