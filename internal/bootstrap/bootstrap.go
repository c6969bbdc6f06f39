package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	natsgo "github.com/nats-io/nats.go"

	"github.com/kirillkom/platform-qa/internal/config"
	"github.com/kirillkom/platform-qa/internal/core/ports"
	"github.com/kirillkom/platform-qa/internal/core/usecase"
	"github.com/kirillkom/platform-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/platform-qa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/platform-qa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/platform-qa/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/platform-qa/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
	"github.com/kirillkom/platform-qa/internal/observability/metrics"
)

// App is the question-answering side: chunk store, model client and the
// optional telemetry publisher.
type App struct {
	Config config.Config

	Chat    *usecase.ChatUseCase
	Parties *usecase.PartyUseCase
	Metrics *metrics.HTTPServerMetrics

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	app := &App{Config: cfg, Metrics: metrics.NewHTTPServerMetrics("api")}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	observer := app.Metrics.BreakerObserver("api")
	storeExec := resilience.NewExecutor(resilienceConfig(cfg, observer))

	store, err := openChunkStore(ctx, cfg, storeExec)
	if err != nil {
		return nil, err
	}
	app.onClose(func() { _ = store.db.Close() })

	client := ollama.New(cfg.OllamaURL, ollama.Options{
		ChatModel:   cfg.OllamaChatModel,
		EmbedModel:  cfg.OllamaEmbedModel,
		Temperature: cfg.OllamaTemperature,
	})
	embedder := ollama.NewEmbedder(client, resilience.NewExecutor(resilienceConfig(cfg, observer)))
	// A stream that already forwarded tokens cannot be replayed, so the
	// generator only gets the breaker.
	generator := ollama.NewGenerator(client, resilience.NewExecutor(resilienceConfig(cfg, observer).WithoutRetry()))

	opts := usecase.DefaultChatOptions()
	opts.TopK = cfg.RAGTopK
	opts.StreamBuffer = cfg.ChatStreamBuffer
	opts.RequestTimeout = cfg.ChatRequestTimeout
	opts.MaxTurns = cfg.ChatMaxTurns

	chat := usecase.NewChatUseCase(embedder, usecase.NewSemanticRetriever(store.repo), generator, opts).
		WithPartyDirectory(store.repo).
		WithMetrics(app.Metrics)

	if cfg.TelemetryEnabled {
		sink, closeSink, err := openTelemetrySink(cfg, observer)
		if err != nil {
			return nil, err
		}
		app.onClose(closeSink)
		chat = chat.WithTelemetry(sink)
	}

	app.Chat = chat
	app.Parties = usecase.NewPartyUseCase(store.repo)

	if dim, err := store.repo.Dimension(ctx); err != nil {
		slog.Warn("chunk_store_dimension_unknown", "driver", cfg.ChunkStoreDriver, "error", err)
	} else {
		slog.Info("chunk_store_ready", "driver", cfg.ChunkStoreDriver, "embedding_dimension", dim)
	}
	return app, nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases handles in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// Worker is the telemetry consumer side.
type Worker struct {
	Config config.Config

	Conn      *natsgo.Conn
	Telemetry ports.ChatEventConsumer
	Metrics   *metrics.WorkerMetrics

	closeFns []func()
}

func NewWorker(ctx context.Context, cfg config.Config) (_ *Worker, err error) {
	w := &Worker{Config: cfg, Metrics: metrics.NewWorkerMetrics("worker")}
	defer func() {
		if err != nil {
			w.Close()
		}
	}()

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	w.closeFns = append(w.closeFns, func() { _ = db.Close() })

	events := postgres.NewEventRepository(db)
	if err := events.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Options{Name: "platform-qa-worker"})
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	w.closeFns = append(w.closeFns, func() { _ = conn.Drain() })

	w.Conn = conn
	w.Telemetry = usecase.NewTelemetryUseCase(events, w.Metrics)
	return w, nil
}

func (w *Worker) Close() {
	for i := len(w.closeFns) - 1; i >= 0; i-- {
		w.closeFns[i]()
	}
	w.closeFns = nil
}

type chunkStore struct {
	db   *sql.DB
	repo *sqlstore.ChunkRepository
}

func openChunkStore(ctx context.Context, cfg config.Config, exec *resilience.Executor) (chunkStore, error) {
	switch cfg.ChunkStoreDriver {
	case config.DriverSQLite:
		db, err := sqlite.OpenDB(ctx, cfg.SQLitePath)
		if err != nil {
			return chunkStore{}, fmt.Errorf("open sqlite: %w", err)
		}
		return chunkStore{db: db, repo: sqlite.NewChunkRepository(db, exec)}, nil
	case config.DriverPostgres:
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return chunkStore{}, fmt.Errorf("open postgres: %w", err)
		}
		return chunkStore{db: db, repo: postgres.NewChunkRepository(db, exec)}, nil
	default:
		return chunkStore{}, fmt.Errorf("unsupported chunk store driver %q", cfg.ChunkStoreDriver)
	}
}

func openTelemetrySink(cfg config.Config, observer func(string, string, string)) (*nats.TelemetrySink, func(), error) {
	conn, err := nats.Connect(cfg.NATSURL, nats.Options{Name: "platform-qa-api"})
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	sink := nats.NewTelemetrySink(conn, cfg.TelemetrySubject, resilience.NewExecutor(resilienceConfig(cfg, observer)))
	return sink, func() { _ = conn.Drain() }, nil
}

func resilienceConfig(cfg config.Config, observer func(string, string, string)) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryAttempts
	}
	rc.BreakerEnabled = cfg.ResilienceBreaker
	rc.OnStateChange = observer
	return rc
}
