package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/config"
	"github.com/vyrodovalexey/clusterdesk/internal/middleware"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/parser"
	"github.com/vyrodovalexey/clusterdesk/internal/portforward"
	"github.com/vyrodovalexey/clusterdesk/internal/proxy"
	"github.com/vyrodovalexey/clusterdesk/internal/router"
	"github.com/vyrodovalexey/clusterdesk/internal/routes"
	"github.com/vyrodovalexey/clusterdesk/internal/server"
	"github.com/vyrodovalexey/clusterdesk/internal/static"
)

const metricsNamespace = "clusterdesk"

// application holds all application components.
type application struct {
	config    *config.Config
	store     *cluster.Store
	watcher   *cluster.Watcher
	forwards  *portforward.Manager
	kubeProxy *proxy.KubeProxy
	server    *server.Server
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// newApplication wires every component from cfg. Kubeconfig files that
// fail to load are logged and skipped.
func newApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	app := &application{config: cfg}

	tracer, err := initTracer(cfg.Observability.Tracing)
	if err != nil {
		return nil, err
	}
	app.tracer = tracer

	app.metrics = observability.NewMetrics(metricsNamespace)
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)

	storeOpts := []cluster.StoreOption{
		cluster.WithStoreLogger(logger.With(observability.String("component", "clusters"))),
	}
	if cfg.Clusters.ProxyServer != "" {
		proxyURL, err := config.ParseProxyServer(cfg.Clusters.ProxyServer)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy server: %w", err)
		}
		logger.Info("cluster traffic goes through proxy", observability.String("proxy", proxyURL.Redacted()))
		storeOpts = append(storeOpts, cluster.WithProxyURL(proxyURL))
	}

	app.store = cluster.NewStore(storeOpts...)
	if err := app.store.Load(cfg.Clusters.Kubeconfigs...); err != nil {
		logger.Warn("some kubeconfigs failed to load", observability.Error(err))
	}

	if cfg.Clusters.Watch && len(cfg.Clusters.Kubeconfigs) > 0 {
		app.watcher, err = cluster.NewWatcher(app.store, cfg.Clusters.Kubeconfigs,
			cluster.WithDebounceDelay(cfg.Clusters.DebounceDelay.Duration()),
			cluster.WithWatcherLogger(logger.With(observability.String("component", "kubeconfig-watcher"))),
			cluster.WithErrorCallback(func(err error) {
				logger.Warn("kubeconfig reload failed", observability.Error(err))
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubeconfig watcher: %w", err)
		}
	}

	proxyMetrics := proxy.NewMetrics(metricsNamespace)
	app.kubeProxy = proxy.New(
		proxy.WithPrefix(cfg.Proxy.Prefix),
		proxy.WithTimeout(cfg.Proxy.Timeout.Duration()),
		proxy.WithRateLimit(cfg.Proxy.RateLimit, cfg.Proxy.RateBurst),
		proxy.WithCircuitBreaker(cfg.Proxy.BreakerThreshold, cfg.Proxy.BreakerTimeout.Duration()),
		proxy.WithLogger(logger.With(observability.String("component", "kube-proxy"))),
		proxy.WithMetrics(proxyMetrics),
	)

	forwardMetrics := portforward.NewMetrics(metricsNamespace)
	app.forwards = portforward.NewManager(app.store,
		portforward.WithLogger(logger.With(observability.String("component", "port-forward"))),
		portforward.WithMetrics(forwardMetrics),
	)

	app.store.OnRemove(app.kubeProxy.Forget)
	app.store.OnRemove(app.forwards.StopCluster)

	routerMetrics := router.NewMetrics(metricsNamespace)
	middlewareMetrics := middleware.NewMetrics(metricsNamespace)

	collectors := []prometheus.Collector{
		proxyMetrics,
		forwardMetrics,
		routerMetrics,
		middlewareMetrics,
		app.store.Collector(metricsNamespace),
	}
	for _, c := range collectors {
		if err := app.metrics.RegisterCollector(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	rt, err := buildRouter(cfg, app, logger, routerMetrics)
	if err != nil {
		return nil, err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithResolver(cluster.NewResolver(app.store)),
		server.WithProxy(app.kubeProxy),
		server.WithMiddlewareMetrics(middlewareMetrics),
		server.WithTracer(tracer),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(app.metrics, cfg.Observability.Metrics.Path))
	}
	if cfg.Static.Dir != "" {
		opts = append(opts, server.WithStatic(static.New(os.DirFS(cfg.Static.Dir),
			static.WithIndex(cfg.Static.Index),
			static.WithSPAFallback(cfg.Static.SPAEnabled()),
			static.WithLogger(logger),
		)))
	}

	app.server, err = server.New(cfg.Server, rt, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return app, nil
}

// buildRouter registers every route producer and freezes the table.
func buildRouter(
	cfg *config.Config,
	app *application,
	logger observability.Logger,
	metrics *router.Metrics,
) (*router.Router, error) {
	reg := router.NewRegistry()
	err := reg.Register(
		&routes.System{
			Build:     routes.BuildInfo{Version: version, Commit: gitCommit, BuildTime: buildTime},
			Readiness: app.store,
		},
		&routes.Clusters{Source: app.store},
		&routes.Kubeconfig{
			TokenTTL: cfg.Kubeconfig.TokenTTL.Duration(),
			Logger:   logger,
		},
		&routes.PortForward{Manager: app.forwards},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	rt, err := router.New(reg,
		router.WithParser(parser.New(
			parser.WithMaxBodySize(cfg.Server.MaxBodySize),
			parser.WithLogger(logger),
		)),
		router.WithLogger(logger),
		router.WithMetrics(metrics),
		router.WithTracer(app.tracer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return rt, nil
}

// initTracer creates the tracer from configuration.
func initTracer(cfg config.TracingConfig) (*observability.Tracer, error) {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}
