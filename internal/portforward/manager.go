package portforward

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

type entry struct {
	forward Forward
	session Session
}

// Manager owns the active forwards of the process.
type Manager struct {
	clusters ClusterLookup
	dialer   Dialer
	logger   observability.Logger
	metrics  *Metrics

	// inflight collapses concurrent starts of the same key into one dial.
	inflight singleflight.Group

	mu       sync.RWMutex
	forwards map[Key]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer sets the dialer. The default is SPDYDialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a Manager resolving cluster IDs through clusters.
func NewManager(clusters ClusterLookup, opts ...Option) *Manager {
	m := &Manager{
		clusters: clusters,
		logger:   observability.NopLogger(),
		forwards: make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &SPDYDialer{Logger: m.logger}
	}
	if m.metrics == nil {
		m.metrics = NewMetrics("clusterdesk")
	}
	return m
}

// Start opens a forward for key and returns its local port. forwardPort
// requests a specific local port; zero picks a free one. Starting a key
// that is already forwarded returns the existing port.
func (m *Manager) Start(ctx context.Context, key Key, forwardPort int) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	if forwardPort < 0 || forwardPort > 65535 {
		return 0, fmt.Errorf("%w: forward port %d out of range", util.ErrInvalidInput, forwardPort)
	}

	v, err, _ := m.inflight.Do(key.String(), func() (any, error) {
		if port, ok := m.Get(key); ok {
			return port, nil
		}

		port, err := m.start(ctx, key, forwardPort)
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.starts.WithLabelValues(string(key.Kind), result).Inc()
		return port, err
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (m *Manager) start(ctx context.Context, key Key, forwardPort int) (int, error) {
	c, ok := m.clusters.Get(key.ClusterID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCluster, key.ClusterID)
	}

	cs, err := c.Clientset()
	if err != nil {
		return 0, util.NewClusterError(c.ID, "cannot build clientset", err)
	}

	tgt, err := resolveTarget(ctx, cs, key)
	if err != nil {
		return 0, err
	}

	session, err := m.dialer.Dial(ctx, c, key.Namespace, tgt.pod, tgt.port, forwardPort)
	if err != nil {
		return 0, util.NewClusterError(c.ID, fmt.Sprintf("port-forward to %s/%s failed", key.Namespace, tgt.pod), err)
	}

	e := &entry{
		forward: Forward{
			ClusterID:  key.ClusterID,
			Namespace:  key.Namespace,
			Kind:       key.Kind,
			Name:       key.Name,
			Port:       key.Port,
			LocalPort:  session.LocalPort(),
			Pod:        tgt.pod,
			TargetPort: tgt.port,
			StartedAt:  time.Now(),
		},
		session: session,
	}

	m.mu.Lock()
	m.forwards[key] = e
	m.metrics.active.Set(float64(len(m.forwards)))
	m.mu.Unlock()

	m.logger.Info("port-forward started",
		observability.String("forward", key.String()),
		observability.String("pod", tgt.pod),
		observability.Int("local_port", e.forward.LocalPort),
	)

	go m.reap(key, e)

	return e.forward.LocalPort, nil
}

// reap drops e once its session ends on its own.
func (m *Manager) reap(key Key, e *entry) {
	<-e.session.Done()

	m.mu.Lock()
	if cur, ok := m.forwards[key]; ok && cur == e {
		delete(m.forwards, key)
		m.metrics.active.Set(float64(len(m.forwards)))
	}
	m.mu.Unlock()

	m.logger.Debug("port-forward ended", observability.String("forward", key.String()))
}

// Get returns the local port of an active forward.
func (m *Manager) Get(key Key) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.forwards[key]
	if !ok {
		return 0, false
	}
	select {
	case <-e.session.Done():
		return 0, false
	default:
		return e.forward.LocalPort, true
	}
}

// Stop closes the forward for key.
func (m *Manager) Stop(key Key) error {
	m.mu.Lock()
	e, ok := m.forwards[key]
	if ok {
		delete(m.forwards, key)
		m.metrics.active.Set(float64(len(m.forwards)))
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("port-forward %s: %w", key, util.ErrNotFound)
	}

	e.session.Close()
	m.logger.Info("port-forward stopped", observability.String("forward", key.String()))
	return nil
}

// List returns the active forwards of a cluster, ordered by namespace,
// name and port.
func (m *Manager) List(clusterID string) []Forward {
	m.mu.RLock()
	out := make([]Forward, 0, len(m.forwards))
	for key, e := range m.forwards {
		if key.ClusterID == clusterID {
			out = append(out, e.forward)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Port < b.Port
	})
	return out
}

// StopCluster closes every forward of a cluster. It is registered as a
// store removal hook.
func (m *Manager) StopCluster(clusterID string) {
	m.stopWhere(func(k Key) bool { return k.ClusterID == clusterID })
}

// StopAll closes every forward.
func (m *Manager) StopAll() {
	m.stopWhere(func(Key) bool { return true })
}

func (m *Manager) stopWhere(match func(Key) bool) {
	m.mu.Lock()
	var closing []*entry
	for key, e := range m.forwards {
		if match(key) {
			closing = append(closing, e)
			delete(m.forwards, key)
		}
	}
	m.metrics.active.Set(float64(len(m.forwards)))
	m.mu.Unlock()

	for _, e := range closing {
		e.session.Close()
	}
	if len(closing) > 0 {
		m.logger.Info("port-forwards stopped", observability.Int("count", len(closing)))
	}
}
