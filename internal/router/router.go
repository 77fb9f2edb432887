package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/contenttype"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/parser"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// Route construction errors.
var (
	ErrNilHandler  = errors.New("route handler is nil")
	ErrEmptyMethod = errors.New("route method is empty")
	ErrNilRegistry = errors.New("route registry is nil")
)

// HandlerFunc handles a matched route. A non-nil error is turned into an
// error response; the returned Response is then ignored.
type HandlerFunc func(ctx context.Context, req *Request) (Response, error)

// Request is the context handed to a route handler.
type Request struct {
	// Cluster is the cluster the request is bound to. It may be nil and is
	// owned by the caller.
	Cluster *cluster.Cluster

	// Params holds the values captured by ":name" pattern segments.
	Params map[string]string

	// Path is the request path as received.
	Path string

	Payload parser.Payload

	// Query is empty, never nil, when the URL has no query component.
	Query url.Values

	Raw *http.Request

	// Response is the underlying writer. Handlers that write to it directly
	// must return an empty Response.
	Response http.ResponseWriter
}

// Param returns the named path parameter.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Response describes what a handler wants written back.
type Response struct {
	// Body is the response payload: nil, string, []byte, io.Reader or any
	// JSON-encodable value.
	Body any

	// Error is used as the body when Body is nil, and switches the default
	// status to 400.
	Error any

	// StatusCode overrides the default status when non-zero.
	StatusCode int

	// ContentType selects the Content-Type header. None means JSON.
	ContentType contenttype.Type

	// Headers are written after Content-Type, in key order, and may
	// override it.
	Headers map[string]string
}

// compiledRoute is a Route with its matchers.
type compiledRoute struct {
	route   Route
	method  *MethodMatcher
	matcher *PathMatcher
}

// Router dispatches requests to the first matching route.
type Router struct {
	routes  []compiledRoute
	parser  parser.Parser
	logger  observability.Logger
	metrics *Metrics
	tracer  *observability.Tracer
}

// Option is a functional option for configuring the router.
type Option func(*Router)

// WithParser sets the request parser.
func WithParser(p parser.Parser) Option {
	return func(r *Router) {
		r.parser = p
	}
}

// WithLogger sets the logger for the router.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the dispatch metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Router) {
		r.tracer = t
	}
}

// New compiles every route in registry and freezes it.
func New(registry *Registry, opts ...Option) (*Router, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}

	rt := &Router{
		parser: parser.New(),
		logger: observability.NopLogger(),
		tracer: observability.NoopTracer(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.metrics == nil {
		rt.metrics = NewMetrics("clusterdesk")
	}

	routes := registry.Freeze()
	rt.routes = make([]compiledRoute, 0, len(routes))
	for _, route := range routes {
		compiled, err := compile(route)
		if err != nil {
			return nil, err
		}
		rt.routes = append(rt.routes, compiled)
	}

	rt.logger.Debug("router built", observability.Int("routes", len(rt.routes)))

	return rt, nil
}

func compile(route Route) (compiledRoute, error) {
	if route.Method == "" {
		return compiledRoute{}, fmt.Errorf("%w: %q", ErrEmptyMethod, route.Path)
	}
	if route.Handler == nil {
		return compiledRoute{}, fmt.Errorf("%w: %s %s", ErrNilHandler, route.Method, route.Path)
	}
	matcher, err := NewPathMatcher(route.Path)
	if err != nil {
		return compiledRoute{}, fmt.Errorf("compiling route %s %s: %w", route.Method, route.Path, err)
	}
	return compiledRoute{
		route:   route,
		method:  NewMethodMatcher(route.Method),
		matcher: matcher,
	}, nil
}

// Routes returns the compiled routes in match order.
func (rt *Router) Routes() []Route {
	out := make([]Route, len(rt.routes))
	for i := range rt.routes {
		out[i] = rt.routes[i].route
	}
	return out
}

// Match returns the first route matching method and the escaped path.
func (rt *Router) Match(method, path string) (*Route, map[string]string, bool) {
	for i := range rt.routes {
		cr := &rt.routes[i]
		if !cr.method.Match(method) {
			continue
		}
		if ok, params := cr.matcher.Match(path); ok {
			return &cr.route, params, true
		}
	}
	return nil, nil, false
}

// Route dispatches r to the first matching route and writes the response.
// It returns false, without writing anything, when no route matches; the
// caller then falls back to other handling. Every handler outcome,
// including errors and panics, is written as a normal HTTP response.
func (rt *Router) Route(c *cluster.Cluster, w http.ResponseWriter, r *http.Request) bool {
	start := time.Now()

	route, params, ok := rt.Match(r.Method, r.URL.EscapedPath())
	if !ok {
		rt.metrics.miss(strings.ToLower(r.Method))
		return false
	}

	ctx := r.Context()
	util.RecordRoute(ctx, route.Path)

	ctx, span := rt.tracer.StartSpan(ctx, "router.dispatch",
		trace.WithAttributes(
			attribute.String("http.route", route.Path),
			attribute.String("http.request.method", route.Method),
		),
	)
	defer span.End()

	if c != nil {
		span.SetAttributes(attribute.String("clusterdesk.cluster.id", c.ID))
	}

	resp, kind := rt.dispatch(ctx, route, c, params, w, r)
	if kind != "" {
		rt.metrics.failure(route.Path, kind)
	}

	status, encodeErr := writeResponse(w, resp)
	if encodeErr != nil {
		rt.metrics.failure(route.Path, failureEncode)
		observability.RecordError(ctx, encodeErr)
		rt.logger.WithContext(ctx).Warn("response body could not be encoded",
			observability.String("route", route.Path),
			observability.Error(encodeErr),
		)
	}

	elapsed := time.Since(start)
	rt.metrics.observe(route.Method, route.Path, status, elapsed)
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	rt.logger.WithContext(ctx).Debug("route dispatched",
		observability.String("method", route.Method),
		observability.String("route", route.Path),
		observability.Int("status", status),
		observability.Duration("duration", elapsed),
	)

	return true
}

// dispatch parses the payload and runs the handler. kind names the
// failure cause when the result is an error response produced here.
func (rt *Router) dispatch(
	ctx context.Context,
	route *Route,
	c *cluster.Cluster,
	params map[string]string,
	w http.ResponseWriter,
	r *http.Request,
) (resp Response, kind string) {
	payload, err := rt.parser.Parse(r)
	if err != nil {
		observability.RecordError(ctx, err)
		rt.logger.WithContext(ctx).Warn("request payload rejected",
			observability.String("route", route.Path),
			observability.Error(err),
		)
		return errorResponse(err), failureParse
	}

	req := &Request{
		Cluster:  c,
		Params:   params,
		Path:     r.URL.Path,
		Payload:  payload,
		Query:    r.URL.Query(),
		Raw:      r,
		Response: w,
	}

	return rt.invoke(ctx, route, req)
}

func (rt *Router) invoke(ctx context.Context, route *Route, req *Request) (resp Response, kind string) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%v", rec)
			observability.RecordError(ctx, err)
			rt.logger.WithContext(ctx).Error("route handler panicked",
				observability.String("route", route.Path),
				observability.Any("panic", rec),
				observability.String("stack", string(debug.Stack())),
			)
			resp, kind = errorResponse(err), failurePanic
		}
	}()

	resp, err := route.Handler(ctx, req)
	if err != nil {
		observability.RecordError(ctx, err)
		rt.logger.WithContext(ctx).Warn("route handler failed",
			observability.String("route", route.Path),
			observability.Error(err),
		)
		return errorResponse(err), failureHandler
	}
	return resp, ""
}

// errorResponse converts err into an error Response with the default
// status. Handlers that need another status return it explicitly.
func errorResponse(err error) Response {
	return Response{Error: err.Error()}
}
