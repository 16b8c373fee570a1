package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotebook/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotebook/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds /api/v1 requests other than the event feed.
const DefaultRequestTimeout = 30 * time.Second

// EventsPath is where the websocket event feed is mounted.
const EventsPath = "/api/v1/events"

// RouterConfig holds what SetupRouter wires together.
type RouterConfig struct {
	Logger     *slog.Logger
	AppConfig  *config.AppConfig
	AuthConfig *config.AuthConfig

	HealthHandler *handlers.HealthHandler
	QuoteHandler  *handlers.QuoteHandler

	// EventFeed serves EventsPath when non-nil.
	EventFeed http.Handler

	// Timeout is the per-request deadline. Zero disables it.
	Timeout time.Duration
}

// SetupRouter installs the middleware chain and every route.
//
// Global chain, outermost first: Recovery, ContextLogger, RequestID,
// CorrelationID, otel instrumentation, Logging.
//
// Routes:
//   - /-/          probes, build info and Prometheus metrics
//   - /api/v1/events  websocket feed, no deadline
//   - /api/v1/quotes  the quote book; mutating routes sit behind RequireAuth
//     (and RequireScopes when auth.write_scope is set) if auth is enabled
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.ContextLogger(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
	)
	engine.Use(telemetry.Middleware(cfg.AppConfig.Name)...)
	engine.Use(middleware.Logging(cfg.Logger, EventsPath))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutes(engine)
	}

	api := engine.Group("/api/v1")

	if cfg.EventFeed != nil {
		api.GET("/events", gin.WrapH(cfg.EventFeed))
	}

	if cfg.QuoteHandler == nil {
		return
	}

	read := api.Group("")
	read.Use(middleware.Timeout(cfg.Timeout))

	write := read.Group("")

	if auth := cfg.AuthConfig; auth != nil && auth.Enabled {
		write.Use(middleware.RequireAuth(auth))

		if auth.WriteScope != "" {
			write.Use(middleware.RequireScopes(auth, auth.WriteScope))
		}
	}

	cfg.QuoteHandler.RegisterQuoteRoutes(read, write)
}

// NewDefaultRouterConfig fills in the default request timeout.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	appCfg *config.AppConfig,
	authCfg *config.AuthConfig,
	healthHandler *handlers.HealthHandler,
	quoteHandler *handlers.QuoteHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		AppConfig:     appCfg,
		AuthConfig:    authCfg,
		HealthHandler: healthHandler,
		QuoteHandler:  quoteHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
