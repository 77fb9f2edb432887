package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// RemoveFunc is called with the ID of every cluster dropped by a reload.
type RemoveFunc func(id string)

// Store holds the current set of clusters.
type Store struct {
	mu       sync.RWMutex
	clusters map[string]*Cluster
	loaded   bool
	onRemove []RemoveFunc
	proxyURL *url.URL
	logger   observability.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(logger observability.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithProxyURL makes every loaded cluster connect through the proxy at u.
func WithProxyURL(u *url.URL) StoreOption {
	return func(s *Store) {
		s.proxyURL = u
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clusters: make(map[string]*Cluster),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnRemove registers fn to run after a reload drops a cluster.
func (s *Store) OnRemove(fn RemoveFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = append(s.onRemove, fn)
}

// Load reads every kubeconfig file and replaces the cluster set with one
// cluster per context. Files that fail to parse are reported in the
// returned error and keep the clusters they contributed before, so a file
// caught mid-write does not drop its contexts.
func (s *Store) Load(paths ...string) error {
	var (
		found  []*Cluster
		errs   []error
		failed = make(map[string]struct{})
	)

	for _, path := range paths {
		clusters, err := loadKubeconfig(path)
		if err != nil {
			s.logger.Warn("failed to load kubeconfig",
				observability.String("path", path),
				observability.Error(err),
			)
			errs = append(errs, err)
			if abs, absErr := filepath.Abs(path); absErr == nil {
				failed[abs] = struct{}{}
			}
			continue
		}
		for _, c := range clusters {
			found = append(found, c.WithProxyURL(s.proxyURL))
		}
	}

	if len(failed) > 0 {
		s.mu.RLock()
		for _, c := range s.clusters {
			if _, ok := failed[c.KubeconfigPath]; ok {
				found = append(found, c)
			}
		}
		s.mu.RUnlock()
	}

	s.Replace(found...)

	s.logger.Info("clusters loaded",
		observability.Int("count", len(found)),
		observability.Int("files", len(paths)),
	)

	return errors.Join(errs...)
}

func loadKubeconfig(path string) ([]*Cluster, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("kubeconfig", "invalid path", err)
	}

	cfg, err := clientcmd.LoadFromFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig %s: %w", absPath, err)
	}

	clusters := make([]*Cluster, 0, len(cfg.Contexts))
	for name, kctx := range cfg.Contexts {
		if kctx == nil {
			continue
		}
		c := &Cluster{
			ID:             StableID(absPath, name),
			Name:           name,
			ContextName:    name,
			KubeconfigPath: absPath,
			Namespace:      kctx.Namespace,
		}
		kc := cfg.Clusters[kctx.Cluster]
		if kc != nil {
			c.Server = kc.Server
		}
		c.fingerprint = fingerprint(kctx, kc, cfg.AuthInfos[kctx.AuthInfo])
		clusters = append(clusters, c)
	}
	return clusters, nil
}

// fingerprint digests the parts of a kubeconfig that affect how a context
// connects.
func fingerprint(parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			return ""
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sameConnection(a, b *Cluster) bool {
	return a.Server == b.Server &&
		a.KubeconfigPath == b.KubeconfigPath &&
		a.Namespace == b.Namespace &&
		a.fingerprint == b.fingerprint
}

// Replace atomically swaps the cluster set. Clusters whose connection
// settings are unchanged keep their existing value so cached clients
// survive.
func (s *Store) Replace(clusters ...*Cluster) {
	next := make(map[string]*Cluster, len(clusters))

	s.mu.Lock()
	for _, c := range clusters {
		if prev, ok := s.clusters[c.ID]; ok && sameConnection(prev, c) {
			next[c.ID] = prev
			continue
		}
		next[c.ID] = c
	}

	var removed []string
	for id := range s.clusters {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}

	s.clusters = next
	s.loaded = true
	hooks := append([]RemoveFunc(nil), s.onRemove...)
	s.mu.Unlock()

	for _, id := range removed {
		s.logger.Debug("cluster removed", observability.String("cluster_id", id))
		for _, fn := range hooks {
			fn(id)
		}
	}
}

// Get returns the cluster with the given ID.
func (s *Store) Get(id string) (*Cluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[id]
	return c, ok
}

// List returns all clusters sorted by name, then ID.
func (s *Store) List() []*Cluster {
	s.mu.RLock()
	out := make([]*Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of clusters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clusters)
}

// Ready reports whether the store has been loaded at least once.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Collector exposes the cluster count as a gauge.
func (s *Store) Collector(namespace string) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clusters",
			Name:      "loaded",
			Help:      "Number of clusters currently loaded from kubeconfig files",
		},
		func() float64 { return float64(s.Len()) },
	)
}
