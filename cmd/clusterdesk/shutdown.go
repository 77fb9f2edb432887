package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// shutdownGrace bounds the whole shutdown sequence.
const shutdownGrace = 30 * time.Second

// run starts the application and blocks until a shutdown signal.
func run(app *application, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.start(ctx); err != nil {
		fatalWithSync(logger, "failed to start", observability.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	app.shutdown(shutdownCtx, logger)

	logger.Info("clusterdesk stopped")
}

// start brings up the watcher and the server. The bound address is
// printed to stdout on its own line so a parent process can read it.
func (app *application) start(ctx context.Context) error {
	if app.watcher != nil {
		if err := app.watcher.Start(ctx); err != nil {
			return err
		}
	}

	if err := app.server.Start(ctx); err != nil {
		return err
	}

	_, _ = os.Stdout.WriteString("LISTENING " + app.server.Addr().String() + "\n")
	return nil
}

// shutdown stops components in reverse dependency order.
func (app *application) shutdown(ctx context.Context, logger observability.Logger) {
	if err := app.server.Stop(ctx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	app.forwards.StopAll()

	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil {
			logger.Error("failed to stop kubeconfig watcher", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
