package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/threadlens/threadlens/internal/composer"
	"github.com/threadlens/threadlens/internal/config"
	"github.com/threadlens/threadlens/internal/db"
	"github.com/threadlens/threadlens/internal/dedupe"
	"github.com/threadlens/threadlens/internal/extractor"
	"github.com/threadlens/threadlens/internal/handlers"
	"github.com/threadlens/threadlens/internal/jobs"
	"github.com/threadlens/threadlens/internal/ledger"
	"github.com/threadlens/threadlens/internal/logger"
	"github.com/threadlens/threadlens/internal/messenger"
	"github.com/threadlens/threadlens/internal/processor"
	"github.com/threadlens/threadlens/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideLedger,
			provideExtractor,
			provideMessenger,
			providePublisher,
			provideProcessor,
			provideQueue,
			provideDispatcher,
			provideSweeper,
			provideEventStore,
			provideServerHandler(provideHealthHandler),
			provideServerHandler(provideThreadsHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startDispatcher,
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	// Missing credentials are fatal before any processing starts.
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideLedger(log *slog.Logger, pool *pgxpool.Pool) *ledger.Service {
	return ledger.NewService(log, ledger.NewPGStore(pool))
}

func provideExtractor(log *slog.Logger, cfg config.Config) *extractor.Client {
	return extractor.NewClient(log, cfg.Extractor.BaseURL, cfg.Extractor.APIKey, cfg.Extractor.Model, cfg.Extractor.Timeout())
}

func provideMessenger(log *slog.Logger, cfg config.Config) *messenger.Service {
	return messenger.New(log, cfg.Feishu)
}

func providePublisher(log *slog.Logger, msgr *messenger.Service, cfg config.Config) *composer.Publisher {
	return composer.NewPublisher(log, msgr, cfg.Processor.MessageLimit)
}

func provideProcessor(log *slog.Logger, msgr *messenger.Service, ext *extractor.Client, led *ledger.Service, pub *composer.Publisher, cfg config.Config) *processor.Service {
	return processor.New(log, msgr, msgr, ext, led, msgr, pub, cfg.Processor)
}

func provideQueue(log *slog.Logger, pool *pgxpool.Pool) *jobs.Queue {
	return jobs.NewQueue(log, pool)
}

func provideDispatcher(log *slog.Logger, queue *jobs.Queue, proc *processor.Service, cfg config.Config) *jobs.Dispatcher {
	return jobs.NewDispatcher(log, queue, proc, cfg.Jobs)
}

func provideSweeper(log *slog.Logger, queue *jobs.Queue) (*jobs.Sweeper, error) {
	return jobs.NewSweeper(log, queue)
}

func provideEventStore() *dedupe.Store {
	return dedupe.NewStore(dedupe.DefaultTTL, dedupe.DefaultMaxEntries)
}

func provideHealthHandler(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log, cfg, pool)
}

func provideThreadsHandler(log *slog.Logger, queue *jobs.Queue) *handlers.ThreadsHandler {
	return handlers.NewThreadsHandler(log, queue)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, queue *jobs.Queue, events *dedupe.Store) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, cfg, queue, events)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Handlers)
}

func startDispatcher(lc fx.Lifecycle, d *jobs.Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { d.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return d.Stop(ctx) },
	})
}

func startSweeper(lc fx.Lifecycle, s *jobs.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { s.Start(); return nil },
		OnStop:  func(_ context.Context) error { s.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
