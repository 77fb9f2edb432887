package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
	validLogOutputs = map[string]bool{"stdout": true, "stderr": true}
)

// ValidateConfig checks cfg and returns a *util.ValidationError naming
// every invalid field.
func ValidateConfig(cfg *Config) error {
	verr := util.NewValidationError("invalid configuration")
	if cfg == nil {
		verr.AddField("", "configuration is nil")
		return verr
	}

	validateServer(&cfg.Server, verr)
	validateProxy(&cfg.Proxy, verr)
	validateObservability(cfg, verr)

	if cfg.Static.Index != "" && strings.ContainsAny(cfg.Static.Index, `/\`) {
		verr.AddField("static.index", "must be a file name")
	}
	for i, p := range cfg.Clusters.Kubeconfigs {
		if strings.TrimSpace(p) == "" {
			verr.AddField(fmt.Sprintf("clusters.kubeconfigs[%d]", i), "must not be empty")
		}
	}

	if p := cfg.Clusters.ProxyServer; p != "" {
		if _, err := ParseProxyServer(p); err != nil {
			verr.AddField("clusters.proxyServer", err.Error())
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func validateServer(s *ServerConfig, verr *util.ValidationError) {
	_, port, err := net.SplitHostPort(s.Address)
	if err != nil {
		verr.AddField("server.address", fmt.Sprintf("invalid host:port: %v", err))
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		verr.AddField("server.address", "port must be between 0 and 65535")
	}
	if s.MaxBodySize < 0 {
		verr.AddField("server.maxBodySize", "must not be negative")
	}
}

func validateProxy(p *ProxyConfig, verr *util.ValidationError) {
	if !strings.HasPrefix(p.Prefix, "/") || p.Prefix == "/" {
		verr.AddField("proxy.prefix", "must be an absolute path other than /")
	}
	if p.RateLimit < 0 {
		verr.AddField("proxy.rateLimit", "must not be negative")
	}
	if p.RateBurst < 0 {
		verr.AddField("proxy.rateBurst", "must not be negative")
	}
	if p.BreakerThreshold < 1 {
		verr.AddField("proxy.breakerThreshold", "must be at least 1")
	}
}

func validateObservability(cfg *Config, verr *util.ValidationError) {
	o := &cfg.Observability

	if o.Metrics.Enabled {
		switch {
		case !strings.HasPrefix(o.Metrics.Path, "/"):
			verr.AddField("observability.metrics.path", "must be an absolute path")
		case o.Metrics.Path == cfg.Proxy.Prefix || strings.HasPrefix(o.Metrics.Path, cfg.Proxy.Prefix+"/"):
			verr.AddField("observability.metrics.path", "must not be under the proxy prefix")
		}
	}

	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		verr.AddField("observability.tracing.samplingRate", "must be between 0 and 1")
	}

	if !validLogLevels[o.Logging.Level] {
		verr.AddField("observability.logging.level", fmt.Sprintf("unknown level %q", o.Logging.Level))
	}
	if !validLogFormats[o.Logging.Format] {
		verr.AddField("observability.logging.format", fmt.Sprintf("unknown format %q", o.Logging.Format))
	}
	if !validLogOutputs[o.Logging.Output] {
		verr.AddField("observability.logging.output", fmt.Sprintf("unknown output %q", o.Logging.Output))
	}
}
