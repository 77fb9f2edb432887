package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/clusterdesk/internal/config"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/server"
)

const kubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: dev
  cluster:
    server: https://dev.example:6443
    insecure-skip-tls-verify: true
contexts:
- name: dev
  context:
    cluster: dev
    user: dev
current-context: dev
users:
- name: dev
  user:
    token: dev-token
`

func TestParseFlags(t *testing.T) {
	t.Setenv("CLUSTERDESK_CONFIG", "/etc/clusterdesk.yaml")
	t.Setenv("CLUSTERDESK_LOG_LEVEL", "debug")

	flags := parseFlags([]string{"-log-format", "console"})

	assert.Equal(t, "/etc/clusterdesk.yaml", flags.configPath)
	assert.Equal(t, "debug", flags.logLevel)
	assert.Equal(t, "console", flags.logFormat)
	assert.False(t, flags.showVersion)

	flags = parseFlags([]string{"-version", "-config", "other.yaml"})
	assert.True(t, flags.showVersion)
	assert.Equal(t, "other.yaml", flags.configPath)
}

func TestApplyLogFlags(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	applyLogFlags(cfg, cliFlags{})
	assert.Equal(t, config.DefaultLogLevel, cfg.Observability.Logging.Level)
	assert.Equal(t, config.DefaultLogFormat, cfg.Observability.Logging.Format)

	applyLogFlags(cfg, cliFlags{logLevel: "warn", logFormat: "console"})
	assert.Equal(t, "warn", cfg.Observability.Logging.Level)
	assert.Equal(t, "console", cfg.Observability.Logging.Format)
}

func TestApplyProxyServer(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("HTTP_PROXY", "http://env-http:3128")

	cfg := config.DefaultConfig()
	applyProxyServer(cfg, cliFlags{})
	assert.Equal(t, "http://env-http:3128", cfg.Clusters.ProxyServer)

	t.Setenv("HTTPS_PROXY", "http://env-https:3128")
	cfg = config.DefaultConfig()
	applyProxyServer(cfg, cliFlags{})
	assert.Equal(t, "http://env-https:3128", cfg.Clusters.ProxyServer)

	cfg = config.DefaultConfig()
	cfg.Clusters.ProxyServer = "http://from-file:3128"
	applyProxyServer(cfg, cliFlags{})
	assert.Equal(t, "http://from-file:3128", cfg.Clusters.ProxyServer)

	t.Setenv("CLUSTERDESK_PROXY_SERVER", "proxy.corp:8080")
	flags := parseFlags(nil)
	applyProxyServer(cfg, flags)
	assert.Equal(t, "proxy.corp:8080", cfg.Clusters.ProxyServer)
}

func TestNewApplication_ProxyServer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(kubeconfig), 0o600))

	cfg := config.DefaultConfig()
	cfg.Clusters.Kubeconfigs = []string{path}
	cfg.Clusters.ProxyServer = "proxy.corp:8080"

	app, err := newApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	clusters := app.store.List()
	require.Len(t, clusters, 1)
	restCfg, err := clusters[0].RESTConfig()
	require.NoError(t, err)
	require.NotNil(t, restCfg.Proxy)

	got, err := restCfg.Proxy(httptest.NewRequest(http.MethodGet, "https://dev.example:6443/api", nil))
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.corp:8080", got.String())

	cfg.Clusters.ProxyServer = "ftp://proxy.corp"
	_, err = newApplication(cfg, observability.NopLogger())
	assert.Error(t, err)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("CLUSTERDESK_TEST_VALUE", "set")

	assert.Equal(t, "set", getEnvOrDefault("CLUSTERDESK_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("CLUSTERDESK_TEST_UNSET", "fallback"))
}

func testApplication(t *testing.T) *application {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(kubeconfig), 0o600))

	assets := filepath.Join(dir, "assets")
	require.NoError(t, os.Mkdir(assets, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "index.html"), []byte("<html>ui</html>"), 0o600))

	cfg := config.DefaultConfig()
	cfg.Clusters.Kubeconfigs = []string{path}
	cfg.Clusters.Watch = true
	cfg.Static.Dir = assets
	cfg.Observability.Metrics.Enabled = true

	app, err := newApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	return app
}

func TestNewApplication(t *testing.T) {
	t.Parallel()

	app := testApplication(t)
	require.NotNil(t, app.watcher)
	assert.Equal(t, 1, app.store.Len())

	h := app.server.Handler()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "version", path: "/version", wantStatus: http.StatusOK, wantBody: `"version":"dev"`},
		{name: "ready", path: "/readyz", wantStatus: http.StatusOK, wantBody: "ready"},
		{name: "clusters", path: "/clusters", wantStatus: http.StatusOK, wantBody: `"name":"dev"`},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantBody: "clusterdesk_build_info"},
		{name: "renderer", path: "/settings", wantStatus: http.StatusOK, wantBody: "<html>ui</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestApplication_StartShutdown(t *testing.T) {
	t.Parallel()

	app := testApplication(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.start(ctx))
	require.NotNil(t, app.server.Addr())

	resp, err := http.Get("http://" + app.server.Addr().String() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app.shutdown(context.Background(), observability.NopLogger())
	assert.Equal(t, server.StateStopped, app.server.State())
}
