// Package app contains the quote book's application services. It sits between
// the adapters (HTTP, CLI, inbox, sync loop) and the domain store, and is the
// only layer that talks to persistence and the remote source through ports.
//
// Application Layer Responsibilities:
//   - Orchestrate use cases (add, import, export, sync)
//   - Persist the store after every mutation that changes it
//   - Publish change events and record metrics
//
// What does NOT belong here:
//   - HTTP/CLI specifics (that's adapters)
//   - Storage engines (that's persistence adapters)
//   - List invariants (that's the domain store)
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jsamuelsen/quotebook/internal/domain"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
	"github.com/jsamuelsen/quotebook/internal/platform/telemetry"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

const exportTimeLayout = "2006-01-02-15-04-05"

// Export is a rendered download of the quote list.
type Export struct {
	Filename string
	Data     []byte
}

// QuoteService wraps the domain store with persistence, the saved category
// selection, event publishing and the optional remote post on add.
type QuoteService struct {
	store        *domain.QuoteStore
	storage      ports.KeyValueStore
	source       ports.QuoteSource
	publisher    ports.EventPublisher
	metrics      *telemetry.QuoteMetrics
	logger       *slog.Logger
	quotesKey    string
	selectionKey string
	postOnAdd    bool
	now          func() time.Time

	// persistMu orders snapshot+save pairs so a later save never writes an
	// older list than an earlier one.
	persistMu sync.Mutex
	posts     sync.WaitGroup
}

// QuoteServiceConfig holds the dependencies for QuoteService.
type QuoteServiceConfig struct {
	// Store defaults to an empty domain.QuoteStore.
	Store *domain.QuoteStore
	// Storage is required.
	Storage   ports.KeyValueStore
	Source    ports.QuoteSource
	Publisher ports.EventPublisher
	Metrics   *telemetry.QuoteMetrics
	Logger    *slog.Logger

	QuotesKey    string
	SelectionKey string
	// PostOnAdd announces locally added quotes to Source in the background.
	PostOnAdd bool
	// Now overrides the clock used for export file names.
	Now func() time.Time
}

// NewQuoteService creates a new quote service.
// Panics if cfg.Storage is nil.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Storage == nil {
		panic("app.NewQuoteService: Storage is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := cfg.Store
	if store == nil {
		store = domain.NewQuoteStore()
	}

	quotesKey := cfg.QuotesKey
	if quotesKey == "" {
		quotesKey = config.DefaultQuotesKey
	}

	selectionKey := cfg.SelectionKey
	if selectionKey == "" {
		selectionKey = config.DefaultSelectionKey
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &QuoteService{
		store:        store,
		storage:      cfg.Storage,
		source:       cfg.Source,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		logger:       logger.With(slog.String("component", "app.QuoteService")),
		quotesKey:    quotesKey,
		selectionKey: selectionKey,
		postOnAdd:    cfg.PostOnAdd && cfg.Source != nil,
		now:          now,
	}
}

// Store exposes the underlying domain store.
func (s *QuoteService) Store() *domain.QuoteStore {
	return s.store
}

// Load restores the persisted list. A missing or invalid snapshot seeds the
// default quotes and saves them. Only a failed save is returned.
func (s *QuoteService) Load(ctx context.Context) error {
	logger := s.loggerFor(ctx).With(slog.String("method", "Load"))

	quotes, err := s.readSnapshot(ctx)
	if err == nil {
		err = s.store.Replace(quotes)
	}

	if err == nil {
		logger.InfoContext(ctx, "quotes loaded", slog.Int("count", s.store.Len()))
		s.metrics.SetQuoteCount(s.store.Len())

		return nil
	}

	if domain.IsNotFound(err) {
		logger.InfoContext(ctx, "no saved quotes, seeding defaults")
	} else {
		logger.WarnContext(ctx, "saved quotes unusable, seeding defaults", slog.Any("error", err))
	}

	if err := s.store.Replace(domain.DefaultQuotes()); err != nil {
		return fmt.Errorf("seeding defaults: %w", err)
	}

	return s.persist(ctx)
}

func (s *QuoteService) readSnapshot(ctx context.Context) ([]domain.Quote, error) {
	raw, err := s.storage.Get(ctx, s.quotesKey)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", s.quotesKey, err)
	}

	quotes, err := domain.DecodeQuotes(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", s.quotesKey, err)
	}

	return quotes, nil
}

// Add validates and appends a single quote. When the append succeeds but the
// save fails, the stored quote is returned together with a
// *domain.PersistenceError.
func (s *QuoteService) Add(ctx context.Context, text, category string) (domain.Quote, error) {
	logger := s.loggerFor(ctx).With(slog.String("method", "Add"))

	q, err := s.store.Add(domain.Quote{Text: text, Category: category})
	s.metrics.ObserveMutation("add", err)

	if err != nil {
		logger.DebugContext(ctx, "add rejected", slog.Any("error", err))

		return domain.Quote{}, fmt.Errorf("adding quote: %w", err)
	}

	logger.InfoContext(ctx, "quote added", slog.String("category", q.Category))

	persistErr := s.persist(ctx)

	s.publish(ctx, newEvent(EventQuoteAdded, q))

	if s.postOnAdd {
		s.postAsync(ctx, q)
	}

	return q, persistErr
}

// Import decodes a JSON document and appends every valid, novel element.
// A document that is not an array aborts with domain.ErrMalformedDocument and
// leaves the list untouched.
func (s *QuoteService) Import(ctx context.Context, data []byte) (domain.ImportReport, error) {
	logger := s.loggerFor(ctx).With(slog.String("method", "Import"))

	elems, err := domain.DecodeDocument(data)
	if err != nil {
		s.metrics.ObserveMutation("import", err)
		logger.WarnContext(ctx, "import rejected", slog.Any("error", err))

		return domain.ImportReport{}, fmt.Errorf("importing quotes: %w", err)
	}

	report := s.store.ImportBatch(elems)
	s.metrics.ObserveMutation("import", nil)
	s.metrics.ObserveImport(report.Added, report.Skipped, report.Invalid)

	logger.InfoContext(ctx, "import complete",
		slog.Int("added", report.Added),
		slog.Int("skipped", report.Skipped),
		slog.Int("invalid", report.Invalid),
	)

	if report.Added == 0 {
		return report, nil
	}

	persistErr := s.persist(ctx)

	s.publish(ctx, newEvent(EventQuotesImported, report))

	return report, persistErr
}

// Export renders the current list as an indented JSON array.
func (s *QuoteService) Export(_ context.Context) (*Export, error) {
	data, err := json.MarshalIndent(s.store.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}

	return &Export{
		Filename: "quotes-export-" + s.now().UTC().Format(exportTimeLayout) + ".json",
		Data:     data,
	}, nil
}

// Random picks a quote matching filter. ok is false when nothing matches.
func (s *QuoteService) Random(_ context.Context, filter domain.CategoryFilter) (domain.Quote, bool) {
	return s.store.RandomPick(filter)
}

// Categories returns the distinct categories in ascending order.
func (s *QuoteService) Categories(_ context.Context) []string {
	return s.store.Categories()
}

// List returns a copy of the list in insertion order.
func (s *QuoteService) List(_ context.Context) []domain.Quote {
	return s.store.Snapshot()
}

// SelectedCategory returns the saved category filter. A missing, unreadable
// or no longer present category yields domain.AllCategories.
func (s *QuoteService) SelectedCategory(ctx context.Context) string {
	raw, err := s.storage.Get(ctx, s.selectionKey)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.loggerFor(ctx).WarnContext(ctx, "reading selected category", slog.Any("error", err))
		}

		return domain.AllCategories
	}

	selected := string(raw)
	if domain.CategoryFilter(selected).IsAll() || !s.store.HasCategory(selected) {
		return domain.AllCategories
	}

	return selected
}

// SelectCategory saves category as the last used filter. An empty value
// saves domain.AllCategories.
func (s *QuoteService) SelectCategory(ctx context.Context, category string) error {
	if domain.CategoryFilter(category).IsAll() {
		category = domain.AllCategories
	}

	if err := s.storage.Set(ctx, s.selectionKey, []byte(category)); err != nil {
		s.loggerFor(ctx).ErrorContext(ctx, "saving selected category", slog.Any("error", err))

		return domain.NewPersistenceError(s.selectionKey, err)
	}

	return nil
}

// Merge applies remote records to the list, then persists whether or not
// anything changed.
func (s *QuoteService) Merge(ctx context.Context, remote []domain.Quote) (domain.MergeReport, error) {
	report := s.applyMerge(ctx, remote)

	return report, s.commitMerge(ctx, report)
}

func (s *QuoteService) applyMerge(ctx context.Context, remote []domain.Quote) domain.MergeReport {
	report := s.store.MergeFromRemote(remote)
	s.store.MarkSynced(s.now())
	s.metrics.ObserveMutation("merge", nil)

	s.loggerFor(ctx).Log(ctx, logging.LevelTrace, "remote records merged",
		slog.Int("remote", len(remote)),
		slog.Int("updated", report.Updated),
		slog.Int("appended", report.Appended),
	)

	return report
}

func (s *QuoteService) commitMerge(ctx context.Context, report domain.MergeReport) error {
	persistErr := s.persist(ctx)

	s.publish(ctx, newEvent(EventQuotesSynced, report))

	return persistErr
}

// LastSync returns the time of the last applied merge, or the zero time.
func (s *QuoteService) LastSync() time.Time {
	return s.store.LastSync()
}

// Close waits for background remote posts to finish.
func (s *QuoteService) Close() {
	s.posts.Wait()
}

func (s *QuoteService) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snapshot := s.store.Snapshot()
	s.metrics.SetQuoteCount(len(snapshot))

	data, err := json.Marshal(snapshot)
	if err != nil {
		return domain.NewPersistenceError(s.quotesKey, err)
	}

	if err := s.storage.Set(ctx, s.quotesKey, data); err != nil {
		s.loggerFor(ctx).ErrorContext(ctx, "saving quotes failed",
			slog.String("key", s.quotesKey),
			slog.Any("error", err),
		)

		return domain.NewPersistenceError(s.quotesKey, err)
	}

	return nil
}

func (s *QuoteService) publish(ctx context.Context, event ports.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.loggerFor(ctx).WarnContext(ctx, "publishing event",
			slog.String("type", event.EventType()),
			slog.Any("error", err),
		)
	}
}

// postAsync sends q to the remote source without blocking the caller. The
// request outlives the caller's context but keeps its values.
func (s *QuoteService) postAsync(ctx context.Context, q domain.Quote) {
	logger := s.loggerFor(ctx)
	bg := context.WithoutCancel(ctx)

	s.posts.Go(func() {
		if err := s.source.PostQuote(bg, q); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, context.Canceled) {
				level = slog.LevelDebug
			}

			logger.Log(bg, level, "posting quote to remote failed", slog.Any("error", err))
		}
	})
}

func (s *QuoteService) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, s.logger)
}
