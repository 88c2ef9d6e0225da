// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/metergate/adapters/clock"
	mghttp "github.com/artpar/metergate/adapters/http"
	"github.com/artpar/metergate/adapters/idgen"
	"github.com/artpar/metergate/adapters/jsonl"
	"github.com/artpar/metergate/adapters/memory"
	"github.com/artpar/metergate/adapters/metrics"
	"github.com/artpar/metergate/adapters/postgres"
	"github.com/artpar/metergate/adapters/sqlite"
	"github.com/artpar/metergate/app"
	"github.com/artpar/metergate/config"
	"github.com/artpar/metergate/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Ingest *app.IngestService
	Stats  *app.StatsService
	Quota  *app.QuotaService
	Track  *app.TrackService

	// Adapters (for cleanup)
	events   ports.EventStore
	subs     ports.SubscriptionStore
	recorder ports.UsageRecorder
	upstream ports.ChatUpstream
}

// New creates and initializes the application from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Logger: logger,
		Config: cfg,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := a.initHTTPServer(); err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return a, nil
}

// initStorage opens the event and subscription stores for the
// configured driver. The jsonl and memory drivers keep subscriptions
// in memory; they have no durable subscription state.
func (a *App) initStorage() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch a.Config.Storage.Driver {
	case "postgres":
		dsn := a.Config.ResolveDSN()
		if dsn == "" {
			return fmt.Errorf("postgres driver requires a DSN (storage.dsn, POSTGRES_URL, or DATABASE_URL)")
		}
		db, err := postgres.Open(dsn)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return fmt.Errorf("init schema: %w", err)
		}
		a.events = postgres.NewEventStore(db)
		a.subs = postgres.NewSubscriptionStore(db)

	case "sqlite":
		dsn := a.Config.Storage.DSN
		if dsn == "" {
			dsn = "metergate.db"
		}
		db, err := sqlite.Open(dsn)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return fmt.Errorf("init schema: %w", err)
		}
		a.events = sqlite.NewEventStore(db)
		a.subs = sqlite.NewSubscriptionStore(db)

	case "jsonl":
		store, err := jsonl.NewStore(a.Config.Storage.LogsDir)
		if err != nil {
			return fmt.Errorf("open jsonl store: %w", err)
		}
		a.events = store
		a.subs = memory.NewSubscriptionStore()

	case "memory":
		a.events = memory.NewEventStore()
		a.subs = memory.NewSubscriptionStore()

	default:
		return fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
	}

	if err := a.events.Ping(ctx); err != nil {
		return fmt.Errorf("storage ping: %w", err)
	}

	a.Logger.Info().
		Str("driver", a.Config.Storage.Driver).
		Msg("storage initialized")
	return nil
}

func (a *App) initHTTPServer() error {
	cfg := a.Config

	clk := clock.Real{}
	ids := idgen.UUID{}

	a.recorder = NewBatchRecorder(a.events, RecorderOptions{
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
		MaxAttempts:   cfg.Usage.MaxAttempts,
		RetryBackoff:  cfg.Usage.RetryBackoff,
	}, a.Metrics, a.Logger)

	a.Ingest = app.NewIngestService(a.recorder, clk, ids, a.Metrics, a.Logger)
	a.Stats = app.NewStatsService(a.events, a.Metrics, a.Logger)
	a.Quota = app.NewQuotaService(a.events, a.subs, cfg.Catalog(), cfg.ExpiryPolicy(), clk, a.Metrics, a.Logger)
	a.Track = app.NewTrackService(a.events, a.recorder, clk, ids, a.Logger)

	usageHandler := mghttp.NewUsageHandler(a.Ingest, a.Stats, a.Quota, a.Logger)
	healthHandler := mghttp.NewHealthHandler(a.events)

	routerCfg := mghttp.RouterConfig{
		Metrics: a.Metrics,
	}

	if cfg.Chat.Enabled {
		upstream, err := a.buildUpstream()
		if err != nil {
			return err
		}
		a.upstream = upstream
		routerCfg.ChatHandler = mghttp.NewChatHandler(a.Track, upstream, ids, a.Logger)
		a.Logger.Info().Msg("chat passthrough enabled at /v1/chat")
	}

	router := mghttp.NewRouter(usageHandler, healthHandler, a.Logger, routerCfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", addr).Msg("http server configured")
	return nil
}

func (a *App) buildUpstream() (ports.ChatUpstream, error) {
	if a.Config.Chat.UpstreamURL == "" {
		a.Logger.Warn().Msg("no chat upstream configured, using echo stub")
		return mghttp.EchoUpstream{}, nil
	}

	upstream, err := mghttp.NewUpstreamClient(mghttp.UpstreamConfig{
		BaseURL: a.Config.Chat.UpstreamURL,
		Timeout: a.Config.Chat.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build upstream: %w", err)
	}
	return upstream, nil
}

// ApplyConfig picks up the reloadable parts of a new configuration:
// plan catalog, expiry policy, and log level.
func (a *App) ApplyConfig(cfg *config.Config) {
	if a.Quota != nil {
		a.Quota.SetCatalog(cfg.Catalog(), cfg.ExpiryPolicy())
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
	}
}

// Run starts the HTTP server and blocks until the context is canceled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application: the HTTP server first so
// no new events arrive, then the recorder so buffered events drain to
// the store, then the store itself.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("usage recorder close error")
		}
	}

	if closer, ok := a.upstream.(interface{ Close() error }); ok {
		closer.Close()
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("event store close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the root logger from logging configuration.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
