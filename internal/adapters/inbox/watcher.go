// Package inbox imports JSON quote documents dropped into a watched
// directory. A processed file is renamed with an ".imported" suffix, or
// ".rejected" when it is not a JSON array.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

const (
	defaultDebounce = 250 * time.Millisecond

	// SuffixImported is appended to files that were imported.
	SuffixImported = ".imported"
	// SuffixRejected is appended to files that are not an import document.
	SuffixRejected = ".rejected"
)

// Importer applies one import document. *app.QuoteService satisfies it.
type Importer interface {
	Import(ctx context.Context, data []byte) (domain.ImportReport, error)
}

// Config contains configuration for Watcher.
type Config struct {
	// Dir is created when missing.
	Dir string
	// Debounce is how long a file must stay quiet before it is read.
	Debounce time.Duration
	// Importer is required.
	Importer Importer
	Logger   *slog.Logger
}

// Watcher feeds *.json files from Dir to an Importer.
type Watcher struct {
	dir      string
	debounce time.Duration
	importer Importer
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	// pending holds the last event time per path. Only Run touches it.
	pending map[string]time.Time
}

// New creates the directory if needed and starts watching it. Events are
// not consumed until Run is called.
func New(cfg Config) (*Watcher, error) {
	if cfg.Importer == nil {
		return nil, errors.New("inbox: importer is required")
	}

	if cfg.Dir == "" {
		return nil, errors.New("inbox: dir is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating inbox dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		dir:      cfg.Dir,
		debounce: debounce,
		importer: cfg.Importer,
		logger:   logger.With(slog.String("component", "inbox.Watcher"), slog.String("dir", cfg.Dir)),
		fsw:      fsw,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run imports any documents already waiting, then follows the directory
// until ctx is done. It closes the underlying watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	w.scan(ctx)

	tick := time.NewTicker(max(w.debounce/2, 5*time.Millisecond))
	defer tick.Stop()

	w.logger.InfoContext(ctx, "inbox watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "inbox watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			w.track(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.WarnContext(ctx, "inbox watch error", slog.Any("error", err))

		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.WarnContext(ctx, "listing inbox", slog.Any("error", err))
		return
	}

	for _, e := range entries {
		if e.Type().IsRegular() && isDocument(e.Name()) {
			w.process(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) track(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if !isDocument(event.Name) {
		return
	}

	w.pending[event.Name] = time.Now()
}

// flush processes every path whose last event is at least one debounce
// window old.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, seen := range w.pending {
		if now.Sub(seen) < w.debounce {
			continue
		}

		delete(w.pending, path)
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	logger := w.logger.With(slog.String("file", filepath.Base(path)))

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.WarnContext(ctx, "reading inbox file", slog.Any("error", err))
		}

		return
	}

	report, err := w.importer.Import(ctx, data)

	switch {
	case errors.Is(err, domain.ErrMalformedDocument):
		logger.WarnContext(ctx, "inbox file rejected", slog.Any("error", err))
		w.rename(ctx, logger, path, SuffixRejected)

	case err != nil && !domain.IsPersistence(err):
		logger.ErrorContext(ctx, "inbox import failed", slog.Any("error", err))

	default:
		if err != nil {
			logger.WarnContext(ctx, "inbox import not saved", slog.Any("error", err))
		}

		logger.InfoContext(ctx, report.Summary(),
			slog.Int("added", report.Added),
			slog.Int("skipped", report.Skipped),
			slog.Int("invalid", report.Invalid),
		)
		w.rename(ctx, logger, path, SuffixImported)
	}
}

func (w *Watcher) rename(ctx context.Context, logger *slog.Logger, path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		logger.ErrorContext(ctx, "renaming inbox file", slog.Any("error", err))
	}
}

func isDocument(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
