package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values.
const (
	DefaultAddress           = "127.0.0.1:0"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultMaxBodySize       = 10 << 20
	DefaultIndex             = "index.html"
	DefaultProxyPrefix       = "/api-kube"
	DefaultBreakerThreshold  = 5
	DefaultBreakerTimeout    = 30 * time.Second
	DefaultDebounceDelay     = 250 * time.Millisecond
	DefaultTokenTTL          = 24 * time.Hour
	DefaultMetricsPath       = "/metrics"
	DefaultServiceName       = "clusterdesk"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultLogOutput         = "stdout"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Static        StaticConfig        `yaml:"static" json:"static"`
	Clusters      ClustersConfig      `yaml:"clusters" json:"clusters"`
	Proxy         ProxyConfig         `yaml:"proxy" json:"proxy"`
	Kubeconfig    KubeconfigConfig    `yaml:"kubeconfig" json:"kubeconfig"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Address is host:port; port 0 picks a free port.
	Address           string   `yaml:"address,omitempty" json:"address,omitempty"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	IdleTimeout       Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	MaxBodySize       int64    `yaml:"maxBodySize,omitempty" json:"maxBodySize,omitempty"`
}

// StaticConfig configures renderer asset serving. An empty Dir disables it.
type StaticConfig struct {
	Dir         string `yaml:"dir,omitempty" json:"dir,omitempty"`
	Index       string `yaml:"index,omitempty" json:"index,omitempty"`
	SPAFallback *bool  `yaml:"spaFallback,omitempty" json:"spaFallback,omitempty"`
}

// ClustersConfig lists the kubeconfig files to load.
type ClustersConfig struct {
	Kubeconfigs   []string `yaml:"kubeconfigs,omitempty" json:"kubeconfigs,omitempty"`
	Watch         bool     `yaml:"watch" json:"watch"`
	DebounceDelay Duration `yaml:"debounceDelay,omitempty" json:"debounceDelay,omitempty"`

	// ProxyServer is the HTTP(S) proxy used for all cluster traffic.
	ProxyServer string `yaml:"proxyServer,omitempty" json:"proxyServer,omitempty"`
}

// ProxyConfig configures the Kubernetes API proxy.
type ProxyConfig struct {
	Prefix           string   `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Timeout          Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RateLimit        float64  `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
	RateBurst        int      `yaml:"rateBurst,omitempty" json:"rateBurst,omitempty"`
	BreakerThreshold int      `yaml:"breakerThreshold,omitempty" json:"breakerThreshold,omitempty"`
	BreakerTimeout   Duration `yaml:"breakerTimeout,omitempty" json:"breakerTimeout,omitempty"`
}

// KubeconfigConfig configures service account kubeconfig export.
type KubeconfigConfig struct {
	TokenTTL Duration `yaml:"tokenTTL,omitempty" json:"tokenTTL,omitempty"`
}

// SPAEnabled reports whether unknown extension-less paths fall back to
// the index.
func (s StaticConfig) SPAEnabled() bool {
	return s.SPAFallback == nil || *s.SPAFallback
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.Address == "" {
		s.Address = DefaultAddress
	}
	if s.ReadHeaderTimeout == 0 {
		s.ReadHeaderTimeout = Duration(DefaultReadHeaderTimeout)
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if s.MaxBodySize == 0 {
		s.MaxBodySize = DefaultMaxBodySize
	}

	if c.Static.Index == "" {
		c.Static.Index = DefaultIndex
	}

	if len(c.Clusters.Kubeconfigs) == 0 {
		c.Clusters.Kubeconfigs = defaultKubeconfigs()
	}
	if c.Clusters.DebounceDelay == 0 {
		c.Clusters.DebounceDelay = Duration(DefaultDebounceDelay)
	}

	p := &c.Proxy
	if p.Prefix == "" {
		p.Prefix = DefaultProxyPrefix
	}
	if p.RateLimit > 0 && p.RateBurst == 0 {
		p.RateBurst = int(p.RateLimit) + 1
	}
	if p.BreakerThreshold == 0 {
		p.BreakerThreshold = DefaultBreakerThreshold
	}
	if p.BreakerTimeout == 0 {
		p.BreakerTimeout = Duration(DefaultBreakerTimeout)
	}

	if c.Kubeconfig.TokenTTL == 0 {
		c.Kubeconfig.TokenTTL = Duration(DefaultTokenTTL)
	}

	c.Observability.applyDefaults()
}

// ParseProxyServer parses a proxy address. A bare "host:port" means an
// http proxy.
func ParseProxyServer(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", raw)
	}
	return u, nil
}

// defaultKubeconfigs follows kubectl: $KUBECONFIG, else ~/.kube/config.
func defaultKubeconfigs() []string {
	if env := os.Getenv("KUBECONFIG"); env != "" {
		var paths []string
		for _, p := range filepath.SplitList(env) {
			if p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			return paths
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".kube", "config")}
}
