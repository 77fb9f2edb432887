package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"k8s.io/client-go/rest"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// TransportFactory builds the round tripper used to reach a cluster.
type TransportFactory func(cfg *rest.Config) (http.RoundTripper, error)

// clusterEntry is the per-cluster proxy state.
type clusterEntry struct {
	cluster   *cluster.Cluster
	target    *url.URL
	transport http.RoundTripper
	breaker   *gobreaker.TwoStepCircuitBreaker
	limiter   *rate.Limiter
}

// entryFor returns the state for c, building it on first use or when the
// store has replaced the cluster value.
func (p *KubeProxy) entryFor(c *cluster.Cluster) (*clusterEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[c.ID]; ok && e.cluster == c {
		return e, nil
	}

	cfg, err := c.RESTConfig()
	if err != nil {
		return nil, NewProxyError("rest_config", c.ID, "cannot build client config", err)
	}

	target, err := serverURL(cfg.Host)
	if err != nil {
		return nil, NewProxyError("parse_server", c.ID, "invalid server", err)
	}

	transport, err := p.transportFactory(cfg)
	if err != nil {
		return nil, NewProxyError("transport", c.ID, "cannot build transport", err)
	}

	e := &clusterEntry{
		cluster:   c,
		target:    target,
		transport: transport,
		breaker:   p.newBreaker(c.ID),
	}
	if p.rateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(p.rateLimit), p.rateBurst)
	}

	p.entries[c.ID] = e
	p.metrics.state(c.ID, gobreaker.StateClosed)

	return e, nil
}

func (p *KubeProxy) newBreaker(clusterID string) *gobreaker.TwoStepCircuitBreaker {
	threshold := safeIntToUint32(p.breakerThreshold)

	return gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        clusterID,
		MaxRequests: 1,
		Timeout:     p.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			p.logger.Info("circuit breaker state change",
				observability.String("cluster_id", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			p.metrics.state(name, to)
		},
	})
}

// Forget drops the state kept for a cluster. It is wired to the cluster
// store so removed clusters do not keep transports alive.
func (p *KubeProxy) Forget(clusterID string) {
	p.mu.Lock()
	delete(p.entries, clusterID)
	p.mu.Unlock()

	p.metrics.forget(clusterID)
}

// serverURL parses a kubeconfig server value. A bare host:port is
// treated as https.
func serverURL(host string) (*url.URL, error) {
	if host == "" {
		return nil, ErrInvalidServer
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServer, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidServer, host)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// DefaultBreakerTimeout is how long an open breaker rejects requests.
const DefaultBreakerTimeout = 30 * time.Second
