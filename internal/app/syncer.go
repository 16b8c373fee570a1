package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotebook/internal/domain"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
	"github.com/jsamuelsen/quotebook/internal/platform/telemetry"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

// Syncer periodically reconciles the quote book with a remote source.
type Syncer struct {
	service  *QuoteService
	source   ports.QuoteSource
	interval time.Duration
	logger   *slog.Logger
	metrics  *telemetry.QuoteMetrics
	tracer   trace.Tracer

	// mu keeps runs from overlapping when the ticker and a manual trigger
	// fire together.
	mu sync.Mutex
}

// SyncerConfig holds the dependencies for Syncer.
type SyncerConfig struct {
	Service  *QuoteService
	Source   ports.QuoteSource
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *telemetry.QuoteMetrics

	// Tracer defaults to telemetry.Tracer().
	Tracer trace.Tracer
}

// NewSyncer creates a syncer. Interval defaults to one minute.
// Panics if Service or Source is nil.
func NewSyncer(cfg SyncerConfig) *Syncer {
	if cfg.Service == nil {
		panic("app.NewSyncer: Service is required")
	}

	if cfg.Source == nil {
		panic("app.NewSyncer: Source is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultSyncInterval
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}

	return &Syncer{
		service:  cfg.Service,
		source:   cfg.Source,
		interval: interval,
		logger:   logger.With(slog.String("component", "app.Syncer")),
		metrics:  cfg.Metrics,
		tracer:   tracer,
	}
}

// Interval returns the time between scheduled runs.
func (s *Syncer) Interval() time.Duration {
	return s.interval
}

// SyncOnce runs one reconciliation. A remote fetch failure is logged and
// reported as an empty MergeReport with a nil error. A failed save returns a
// *SyncError for StepPersist; the merge itself stays applied.
func (s *Syncer) SyncOnce(ctx context.Context) (domain.MergeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.FromContextOr(ctx, s.logger).With(slog.String("operation", "sync"))
	ctx = logging.WithContext(ctx, logger)
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "quotes.sync")
	defer span.End()

	state := &syncRun{}

	err := runStages(ctx, s.tracer, logger, state,
		stage{step: StepFetch, run: s.fetch},
		stage{step: StepVerify, run: s.verify},
		stage{step: StepMerge, run: s.merge},
		stage{step: StepPersist, run: s.persist},
	)

	elapsed := time.Since(start)
	step, _ := SyncStepOf(err)

	span.SetAttributes(
		attribute.Int("quotes.sync.updated", state.report.Updated),
		attribute.Int("quotes.sync.appended", state.report.Appended),
	)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	switch {
	case err == nil:
		s.metrics.ObserveSync(telemetry.SyncOutcomeMerged, elapsed, state.report.Updated, state.report.Appended)
		logger.InfoContext(ctx, "sync completed",
			slog.Int("updated", state.report.Updated),
			slog.Int("appended", state.report.Appended),
			slog.Duration("duration", elapsed),
		)

		return state.report, nil

	case step == StepFetch:
		s.metrics.ObserveSync(telemetry.SyncOutcomeFetchFailed, elapsed, 0, 0)

		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}

		logger.Log(ctx, level, "remote fetch failed, nothing merged", slog.Any("error", err))

		return domain.MergeReport{}, nil

	default:
		s.metrics.ObserveSync(telemetry.SyncOutcomePersistFail, elapsed, state.report.Updated, state.report.Appended)
		logger.ErrorContext(ctx, "sync failed", slog.Any("error", err))

		return state.report, err
	}
}

// Run syncs once immediately, then on every tick until ctx is done.
// It returns nil when ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sync loop started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sync loop stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Syncer) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	// Errors are already logged by SyncOnce.
	_, _ = s.SyncOnce(ctx)
}

func (s *Syncer) fetch(ctx context.Context, state *syncRun) error {
	candidates, err := s.source.FetchCandidates(ctx)
	if err != nil {
		return err
	}

	state.candidates = candidates

	return nil
}

func (s *Syncer) verify(ctx context.Context, state *syncRun) error {
	state.verified = verifyCandidates(state.candidates)

	if dropped := len(state.candidates) - len(state.verified); dropped > 0 {
		logging.FromContextOr(ctx, s.logger).DebugContext(ctx, "dropped invalid remote records",
			slog.Int("dropped", dropped))
	}

	return nil
}

func (s *Syncer) merge(ctx context.Context, state *syncRun) error {
	state.report = s.service.applyMerge(ctx, state.verified)

	return nil
}

func (s *Syncer) persist(ctx context.Context, state *syncRun) error {
	return s.service.commitMerge(ctx, state.report)
}
