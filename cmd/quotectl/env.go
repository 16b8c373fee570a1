package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jsamuelsen/quotebook/internal/adapters/clients"
	"github.com/jsamuelsen/quotebook/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotebook/internal/adapters/persistence"
	"github.com/jsamuelsen/quotebook/internal/app"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
)

// env is what a command operates on. syncer is nil when no remote source
// is available.
type env struct {
	service *app.QuoteService
	syncer  *app.Syncer
	close   func()
}

type envOptions struct {
	profile string
	verbose bool
	logOut  io.Writer
}

// opener builds the env for one command invocation.
type opener func(ctx context.Context, opts envOptions) (*env, error)

// openEnv loads the profile's config, opens its storage backend and restores
// the saved list. Logs go to opts.logOut in the pretty format.
func openEnv(ctx context.Context, opts envOptions) (*env, error) {
	cfg, err := config.Load(opts.profile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lc := logging.FromAppConfig(&cfg.App, &cfg.Log)
	lc.Format = "pretty"
	lc.Level = "warn"

	if opts.verbose {
		lc.Level = "debug"
	}

	logger := logging.NewWithWriter(lc, opts.logOut)

	backend, err := persistence.Open(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	httpClient, err := clients.New(clients.FromAppConfig(&cfg.Client, &cfg.Services.Quote, logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	source := acl.NewQuoteSource(acl.QuoteSourceConfig{Client: httpClient, Logger: logger})

	service := app.NewQuoteService(app.QuoteServiceConfig{
		Storage:      persistence.WithTimeout(backend, cfg.Storage.Timeout),
		Source:       source,
		Logger:       logger,
		QuotesKey:    cfg.Storage.QuotesKey,
		SelectionKey: cfg.Storage.SelectionKey,
		PostOnAdd:    cfg.Sync.Enabled && cfg.Sync.PostOnAdd,
	})

	if err := service.Load(ctx); err != nil {
		logger.WarnContext(ctx, "initial quotes not saved", slog.Any("error", err))
	}

	return &env{
		service: service,
		syncer:  app.NewSyncer(app.SyncerConfig{Service: service, Source: source, Logger: logger}),
		close: func() {
			service.Close()

			if err := backend.Close(); err != nil {
				logger.Error("closing storage", slog.Any("error", err))
			}
		},
	}, nil
}
