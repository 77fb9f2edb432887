package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/config"
	"github.com/vyrodovalexey/clusterdesk/internal/middleware"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/proxy"
	"github.com/vyrodovalexey/clusterdesk/internal/router"
	"github.com/vyrodovalexey/clusterdesk/internal/static"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// State represents the server state.
type State int32

const (
	// StateStopped indicates the server is stopped.
	StateStopped State = iota
	// StateStarting indicates the server is starting.
	StateStarting
	// StateRunning indicates the server is running.
	StateRunning
	// StateStopping indicates the server is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Errors returned by the server lifecycle.
var (
	ErrNilRouter  = errors.New("router is required")
	ErrNotStopped = errors.New("server is not in stopped state")
	ErrNotRunning = errors.New("server is not running")
)

// notFoundBody is written when nothing handles a request.
const notFoundBody = `{"error":"not found"}`

// Server is the main-process HTTP server.
type Server struct {
	cfg      config.ServerConfig
	router   *router.Router
	resolver *cluster.Resolver
	proxy    *proxy.KubeProxy
	static   *static.Handler

	logger            observability.Logger
	metrics           *observability.Metrics
	metricsPath       string
	middlewareMetrics *middleware.Metrics
	tracer            *observability.Tracer

	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	serveDone chan struct{}
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithResolver sets how requests are bound to clusters.
func WithResolver(res *cluster.Resolver) Option {
	return func(s *Server) {
		s.resolver = res
	}
}

// WithProxy enables the Kubernetes API proxy.
func WithProxy(p *proxy.KubeProxy) Option {
	return func(s *Server) {
		s.proxy = p
	}
}

// WithStatic enables static asset serving.
func WithStatic(h *static.Handler) Option {
	return func(s *Server) {
		s.static = h
	}
}

// WithMetrics enables request metrics. A non-empty path also exposes
// the registry there.
func WithMetrics(m *observability.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// WithMiddlewareMetrics sets the counters used by recovery and body limit.
func WithMiddlewareMetrics(m *middleware.Metrics) Option {
	return func(s *Server) {
		s.middlewareMetrics = m
	}
}

// WithTracer sets the tracer for request spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// New creates a server.
func New(cfg config.ServerConfig, rt *router.Router, opts ...Option) (*Server, error) {
	if rt == nil {
		return nil, ErrNilRouter
	}

	s := &Server{
		cfg:    cfg,
		router: rt,
		logger: observability.NopLogger(),
		tracer: observability.NoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Address == "" {
		s.cfg.Address = config.DefaultAddress
	}

	s.state.Store(int32(StateStopped))
	return s, nil
}

// Handler returns the full middleware chain around dispatch.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.dispatch)
	h = middleware.BodyLimit(s.cfg.MaxBodySize, s.logger, s.middlewareMetrics, s.isProxyRequest)(h)
	if s.metrics != nil {
		h = observability.MetricsMiddleware(s.metrics)(h)
	}
	h = observability.TracingMiddleware(s.tracer)(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.Recovery(s.logger, s.middlewareMetrics)(h)
	h = bindClusterID(h)
	h = middleware.RequestID()(h)
	return h
}

// bindClusterID records the addressed cluster ID for logs and spans.
func bindClusterID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := cluster.IDFromRequest(r); id != "" {
			r = r.WithContext(util.ContextWithClusterID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isProxyRequest(r *http.Request) bool {
	return s.proxy != nil && s.proxy.Handles(r.URL.Path)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.metrics != nil && s.metricsPath != "" && r.URL.Path == s.metricsPath {
		util.RecordRoute(ctx, s.metricsPath)
		s.metrics.Handler().ServeHTTP(w, r)
		return
	}

	var c *cluster.Cluster
	if s.resolver != nil {
		c = s.resolver.Resolve(r)
	}

	if s.isProxyRequest(r) {
		util.RecordRoute(ctx, s.proxy.Prefix())
		s.proxy.Serve(c, w, r)
		return
	}

	if s.router.Route(c, w, r) {
		return
	}

	if s.static != nil && s.static.Serve(w, r) {
		util.RecordRoute(ctx, "static")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, notFoundBody)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrNotStopped
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout.Duration(),
		IdleTimeout:       s.cfg.IdleTimeout.Duration(),
		MaxHeaderBytes:    1 << 20,
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.serveDone = done
	s.startTime = time.Now()
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", observability.Error(err))
		}
	}()

	s.state.Store(int32(StateRunning))
	s.logger.Info("server started", observability.String("address", ln.Addr().String()))

	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// or the configured shutdown timeout expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}
	defer s.state.Store(int32(StateStopped))

	if _, ok := ctx.Deadline(); !ok && s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout.Duration())
		defer cancel()
	}

	s.mu.RLock()
	srv, done := s.server, s.serveDone
	s.mu.RUnlock()

	s.logger.Info("stopping server")

	err := srv.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("graceful shutdown incomplete, closing connections", observability.Error(err))
		if closeErr := srv.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	<-done

	s.logger.Info("server stopped")
	return err
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State returns the current state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	if s.State() != StateRunning {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}
