package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"strings"
	"sync"
	"time"

	"k8s.io/client-go/rest"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// DefaultPrefix is the path prefix served by the proxy.
const DefaultPrefix = "/api-kube"

// Defaults for the per-cluster circuit breaker.
const DefaultBreakerThreshold = 5

// KubeProxy forwards requests to Kubernetes API servers.
type KubeProxy struct {
	prefix           string
	timeout          time.Duration
	rateLimit        float64
	rateBurst        int
	breakerThreshold int
	breakerTimeout   time.Duration
	transportFactory TransportFactory
	logger           observability.Logger
	metrics          *Metrics

	mu      sync.Mutex
	entries map[string]*clusterEntry
}

// Option is a functional option for configuring the proxy.
type Option func(*KubeProxy)

// WithPrefix sets the path prefix.
func WithPrefix(prefix string) Option {
	return func(p *KubeProxy) {
		p.prefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithTimeout bounds non-streaming requests. Watches, log follows and
// upgraded connections are never cut off.
func WithTimeout(d time.Duration) Option {
	return func(p *KubeProxy) {
		p.timeout = d
	}
}

// WithRateLimit enables a per-cluster token bucket. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *KubeProxy) {
		p.rateLimit = rps
		p.rateBurst = burst
		if p.rateBurst <= 0 {
			p.rateBurst = 1
		}
	}
}

// WithCircuitBreaker sets how many consecutive transport failures open
// a cluster's breaker and how long it stays open.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(p *KubeProxy) {
		if threshold > 0 {
			p.breakerThreshold = threshold
		}
		if timeout > 0 {
			p.breakerTimeout = timeout
		}
	}
}

// WithTransportFactory overrides how transports are built from a REST
// config.
func WithTransportFactory(f TransportFactory) Option {
	return func(p *KubeProxy) {
		p.transportFactory = f
	}
}

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *KubeProxy) {
		p.logger = logger
	}
}

// WithMetrics sets the proxy metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *KubeProxy) {
		p.metrics = m
	}
}

// New creates a KubeProxy.
func New(opts ...Option) *KubeProxy {
	p := &KubeProxy{
		prefix:           DefaultPrefix,
		breakerThreshold: DefaultBreakerThreshold,
		breakerTimeout:   DefaultBreakerTimeout,
		transportFactory: rest.TransportFor,
		logger:           observability.NopLogger(),
		entries:          make(map[string]*clusterEntry),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = NewMetrics("clusterdesk")
	}

	return p
}

// Prefix returns the path prefix served by the proxy.
func (p *KubeProxy) Prefix() string {
	return p.prefix
}

// Handles reports whether path belongs to the proxy.
func (p *KubeProxy) Handles(path string) bool {
	return path == p.prefix || strings.HasPrefix(path, p.prefix+"/")
}

// Serve proxies r to the API server of c.
func (p *KubeProxy) Serve(c *cluster.Cluster, w http.ResponseWriter, r *http.Request) {
	if c == nil {
		p.metrics.failure("", "no_cluster")
		writeError(w, http.StatusBadRequest, ErrNoCluster.Error())
		return
	}

	entry, err := p.entryFor(c)
	if err != nil {
		p.logger.Error("cannot prepare cluster proxy",
			observability.String("cluster_id", c.ID),
			observability.Error(err),
		)
		p.metrics.failure(c.ID, "setup")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if entry.limiter != nil && !entry.limiter.Allow() {
		p.metrics.failure(c.ID, "rate_limited")
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, util.NewRateLimitError(c.ID, time.Second).Error())
		return
	}

	done, err := entry.breaker.Allow()
	if err != nil {
		p.metrics.failure(c.ID, "circuit_open")
		writeError(w, http.StatusServiceUnavailable,
			util.NewCircuitOpenError(c.ID, entry.breaker.State().String()).Error())
		return
	}

	var upstreamErr error
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = p.strip(pr.In.URL.Path)
			if pr.In.URL.RawPath != "" {
				pr.Out.URL.RawPath = p.strip(pr.In.URL.RawPath)
			}
			pr.SetURL(entry.target)
			pr.SetXForwarded()
		},
		Transport:     entry.transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			p.metrics.request(c.ID, resp.StatusCode)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			upstreamErr = err
			p.handleUpstreamError(w, r, c, err)
		},
	}

	if p.timeout > 0 && !isStreaming(r) {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	defer func() {
		if rec := recover(); rec != nil {
			// ReverseProxy aborts with http.ErrAbortHandler when the client
			// goes away mid-stream. That is not an upstream failure.
			err, ok := rec.(error)
			done(ok && errors.Is(err, http.ErrAbortHandler))
			panic(rec)
		}
		done(upstreamErr == nil || errors.Is(upstreamErr, context.Canceled))
	}()

	rp.ServeHTTP(w, r)
}

func (p *KubeProxy) strip(path string) string {
	tail := strings.TrimPrefix(path, p.prefix)
	if tail == "" || tail[0] != '/' {
		tail = "/" + tail
	}
	return tail
}

func (p *KubeProxy) handleUpstreamError(w http.ResponseWriter, r *http.Request, c *cluster.Cluster, err error) {
	if errors.Is(err, context.Canceled) {
		p.logger.Debug("client went away during proxy",
			observability.String("cluster_id", c.ID),
			observability.String("path", r.URL.Path),
		)
		return
	}

	p.logger.Warn("kube api proxy error",
		observability.String("cluster_id", c.ID),
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)
	p.metrics.failure(c.ID, "upstream")

	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, NewProxyError("forward", c.ID, ErrUpstreamUnavailable.Error(), err).Error())
}

// isStreaming reports whether r is a watch, a followed log or an upgrade.
func isStreaming(r *http.Request) bool {
	q := r.URL.Query()
	if v := q.Get("watch"); v == "true" || v == "1" {
		return true
	}
	if q.Get("follow") == "true" {
		return true
	}
	return r.Header.Get("Upgrade") != ""
}
