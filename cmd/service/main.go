// Package main runs the quotebook HTTP service: the API, the websocket event
// feed, the periodic remote sync and the optional import inbox.
package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/quotebook/internal/adapters/clients"
	"github.com/jsamuelsen/quotebook/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotebook/internal/adapters/events"
	"github.com/jsamuelsen/quotebook/internal/adapters/http"
	"github.com/jsamuelsen/quotebook/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotebook/internal/adapters/inbox"
	"github.com/jsamuelsen/quotebook/internal/adapters/persistence"
	"github.com/jsamuelsen/quotebook/internal/app"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
	"github.com/jsamuelsen/quotebook/internal/platform/telemetry"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cmp.Or(os.Getenv("APP_ENVIRONMENT"), "local"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.FromAppConfig(&cfg.App, &cfg.Log))
	logging.SetDefault(logger)

	logger.InfoContext(ctx, "starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Driver),
	)

	telProvider, err := telemetry.New(ctx, telemetry.FromAppConfig(&cfg.App, &cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := telProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", err))
		}
	}()

	metrics := telemetry.NewQuoteMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	backend, err := persistence.Open(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("closing storage", slog.Any("error", err))
		}
	}()

	storage := persistence.WithTimeout(backend, cfg.Storage.Timeout)

	healthRegistry := ports.NewHealthRegistry()
	if err := ports.RegisterIfChecker(healthRegistry, storage); err != nil {
		return fmt.Errorf("registering storage health check: %w", err)
	}

	httpClient, err := clients.New(clients.FromAppConfig(&cfg.Client, &cfg.Services.Quote, logger))
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}

	source := acl.NewQuoteSource(acl.QuoteSourceConfig{Client: httpClient, Logger: logger})

	if cfg.Sync.Enabled {
		if err := ports.RegisterIfChecker(healthRegistry, source); err != nil {
			return fmt.Errorf("registering quote source health check: %w", err)
		}
	}

	var (
		hub       *events.Hub
		publisher ports.EventPublisher
	)

	if cfg.Events.Enabled {
		hub = events.NewHub(events.HubConfig{
			Logger:         logger,
			AllowAnyOrigin: cfg.Events.AllowAnyOrigin,
			SendBuffer:     cfg.Events.SendBuffer,
		})
		publisher = hub

		defer hub.Close()
	}

	quoteService := app.NewQuoteService(app.QuoteServiceConfig{
		Storage:      storage,
		Source:       source,
		Publisher:    publisher,
		Metrics:      metrics,
		Logger:       logger,
		QuotesKey:    cfg.Storage.QuotesKey,
		SelectionKey: cfg.Storage.SelectionKey,
		PostOnAdd:    cfg.Sync.Enabled && cfg.Sync.PostOnAdd,
	})
	defer quoteService.Close()

	// A list that cannot be saved still serves from memory.
	if err := quoteService.Load(ctx); err != nil {
		logger.WarnContext(ctx, "initial quotes not saved", slog.Any("error", err))
	}

	var syncer *app.Syncer
	if cfg.Sync.Enabled {
		syncer = app.NewSyncer(app.SyncerConfig{
			Service:  quoteService,
			Source:   source,
			Interval: cfg.Sync.Interval,
			Logger:   logger,
			Metrics:  metrics,
		})
	}

	server := http.New(&cfg.Server, logger)

	routerCfg := http.NewDefaultRouterConfig(
		logger,
		&cfg.App,
		&cfg.Auth,
		handlers.NewHealthHandler(handlers.HealthHandlerConfig{
			Registry:  healthRegistry,
			BuildInfo: handlers.NewBuildInfo(Version, Commit, BuildTime),
		}),
		handlers.NewQuoteHandler(quoteService, syncer),
	)

	if hub != nil {
		routerCfg.EventFeed = hub
		server.OnShutdown(hub.Close)
	}

	http.SetupRouter(server.Engine(), routerCfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return server.Run(gctx) })

	if syncer != nil {
		g.Go(func() error { return syncer.Run(gctx) })
	}

	if cfg.Inbox.Enabled {
		watcher, err := inbox.New(inbox.Config{
			Dir:      cfg.Inbox.Dir,
			Debounce: cfg.Inbox.Debounce,
			Importer: quoteService,
			Logger:   logger,
		})
		if err != nil {
			stop()
			_ = g.Wait()

			return fmt.Errorf("starting import inbox: %w", err)
		}

		g.Go(func() error { return watcher.Run(gctx) })
	}

	err = g.Wait()

	logger.Info("shutdown complete")

	return err
}
