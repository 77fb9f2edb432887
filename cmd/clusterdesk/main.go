// Package main is the entry point for the clusterdesk main process.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/zapr"
	"k8s.io/klog/v2"

	"github.com/vyrodovalexey/clusterdesk/internal/config"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	proxyServer string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyLogFlags(cfg, flags)
	applyProxyServer(cfg, flags)

	logger := initLogger(cfg.Observability.Logging)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting clusterdesk",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	app, err := newApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize application", observability.Error(err))
		return
	}

	run(app, logger)
}

// parseFlags parses command line flags.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("clusterdesk", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("CLUSTERDESK_CONFIG", ""),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("CLUSTERDESK_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", getEnvOrDefault("CLUSTERDESK_LOG_FORMAT", ""),
		"Log format (json, console)")
	proxyServer := fs.String("proxy-server", getEnvOrDefault("CLUSTERDESK_PROXY_SERVER", ""),
		"HTTP(S) proxy for cluster traffic (defaults to HTTPS_PROXY or HTTP_PROXY)")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		proxyServer: *proxyServer,
		showVersion: *showVersion,
	}
}

// applyLogFlags lets command line log settings win over the file.
func applyLogFlags(cfg *config.Config, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Observability.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Observability.Logging.Format = flags.logFormat
	}
}

// applyProxyServer picks the proxy for cluster traffic: the flag, then the
// config file, then HTTPS_PROXY or HTTP_PROXY.
func applyProxyServer(cfg *config.Config, flags cliFlags) {
	switch {
	case flags.proxyServer != "":
		cfg.Clusters.ProxyServer = flags.proxyServer
	case cfg.Clusters.ProxyServer != "":
	default:
		cfg.Clusters.ProxyServer = getEnvOrDefault("HTTPS_PROXY", os.Getenv("HTTP_PROXY"))
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("clusterdesk version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger builds the process logger and routes client-go's klog output
// through the same zap core.
func initLogger(cfg config.LoggingConfig) observability.Logger {
	logCfg := observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	}

	z, err := observability.NewZap(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	klog.SetLogger(zapr.NewLogger(z.Named("client-go")))

	logger := observability.NewLoggerFromZap(z)
	observability.SetGlobalLogger(logger)
	return logger
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
