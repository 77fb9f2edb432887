// Package router dispatches application requests to registered route
// handlers and turns their results into HTTP responses.
//
// Routes are contributed by independent producers into a Registry before
// the Router is built. The Router compiles every pattern once, freezes
// the registry and then serves requests without locks: the compiled
// route table is never modified after New returns.
//
// # Matching
//
// Patterns are split on "/" and compared segment by segment. Literal
// segments must be equal, ":name" segments match any value and capture
// it. The first route in registration order whose method and pattern
// both match is selected.
//
// # Responses
//
// A handler returns a Response descriptor. The router writes the
// Content-Type header (JSON unless the handler chose another type),
// then any extra headers in key order, then the status, then the body:
//
//   - []byte and io.Reader bodies are streamed and flushed;
//   - strings are written as-is;
//   - any other value is encoded as JSON.
//
// Handler errors, panics and parser failures all become error responses
// with status 400 unless a more specific status applies.
//
// # Usage
//
//	reg := router.NewRegistry()
//	reg.Register(versionRoutes, clusterRoutes)
//
//	rt, err := router.New(reg, router.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	if !rt.Route(cluster, w, r) {
//	    // fall back to static assets or 404
//	}
package router
