package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/platform-qa/internal/bootstrap"
	"github.com/kirillkom/platform-qa/internal/config"
	"github.com/kirillkom/platform-qa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/platform-qa/internal/observability/logging"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup finishes before os.Exit.
func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		return 1
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		return 1
	}
	defer worker.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           worker.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.TelemetrySubject, "metrics_addr", metricsServer.Addr)
	if err := nats.SubscribeChatEvents(ctx, worker.Conn, cfg.TelemetrySubject, worker.Telemetry.Consume); err != nil {
		slog.Error("worker_subscribe_error", "error", err)
		return 1
	}
	return 0
}
