// Package middleware provides the HTTP middleware wrapped around the
// clusterdesk server's dispatch.
//
//   - RequestID: request identifier injection
//   - Recovery: panic recovery with stack trace logging
//   - Logging: structured access logging
//   - BodyLimit: request body size limiting
//
// Middleware functions follow the standard Go pattern:
//
//	handler := middleware.RequestID()(
//	    middleware.Recovery(logger, metrics)(
//	        middleware.Logging(logger)(yourHandler),
//	    ),
//	)
package middleware
