package acl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jsamuelsen/quotebook/internal/adapters/clients"
	"github.com/jsamuelsen/quotebook/internal/domain"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

const (
	defaultQuotesPath = "/quotes"

	// HealthCheckName is reported by QuoteSource.Name.
	HealthCheckName = "quote-source"

	maxListBody = 8 << 20
)

var (
	_ ports.QuoteSource   = (*QuoteSource)(nil)
	_ ports.HealthChecker = (*QuoteSource)(nil)
)

// QuoteSourceConfig contains configuration for QuoteSource.
type QuoteSourceConfig struct {
	// Client is required. Its BaseURL points at the remote API root.
	Client *clients.Client

	// Path is the collection path. Defaults to "/quotes".
	Path string

	Logger *slog.Logger
}

// QuoteSource reads and announces quotes on the remote endpoint.
type QuoteSource struct {
	client *clients.Client
	path   string
	logger *slog.Logger
}

// NewQuoteSource creates the remote adapter.
// Panics if Client is nil.
func NewQuoteSource(cfg QuoteSourceConfig) *QuoteSource {
	if cfg.Client == nil {
		panic("acl.NewQuoteSource: Client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.Path
	if path == "" {
		path = defaultQuotesPath
	}

	return &QuoteSource{
		client: cfg.Client,
		path:   path,
		logger: logger.With(slog.String("component", "acl.QuoteSource")),
	}
}

// remoteQuote is the wire shape. Native endpoints send text/category;
// quotable-style endpoints send content/tags.
type remoteQuote struct {
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
}

// toDomain picks the native fields first. No validation happens here.
func (r remoteQuote) toDomain() domain.Quote {
	q := domain.Quote{Text: r.Text, Category: r.Category}

	if strings.TrimSpace(q.Text) == "" {
		q.Text = r.Content
	}

	if strings.TrimSpace(q.Category) == "" && len(r.Tags) > 0 {
		q.Category = r.Tags[0]
	}

	return q
}

// page is the paginated envelope quotable-style endpoints wrap lists in.
type page struct {
	Results *[]json.RawMessage `json:"results"`
}

// decodeList accepts a bare JSON array or a page object with a results
// array.
func decodeList(body io.Reader) ([]json.RawMessage, error) {
	var doc json.RawMessage
	if err := json.NewDecoder(io.LimitReader(body, maxListBody)).Decode(&doc); err != nil {
		return nil, err
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(doc, &elems); err == nil && elems != nil {
		return elems, nil
	}

	var p page
	if err := json.Unmarshal(doc, &p); err != nil || p.Results == nil {
		return nil, errors.New("body is neither an array nor an object with a results array")
	}

	return *p.Results, nil
}

// FetchCandidates implements ports.QuoteSource. The body is a JSON array or
// a {"results": [...]} page; elements that are not objects are skipped.
func (s *QuoteSource) FetchCandidates(ctx context.Context) ([]domain.Quote, error) {
	logger := logging.FromContextOr(ctx, s.logger)
	logger.Log(ctx, logging.LevelTrace, "fetching remote quotes", slog.String("path", s.path))

	resp, err := s.client.Get(ctx, s.path)
	if err != nil {
		return nil, MapHTTPError(nil, err, s.client.ServiceName(), "fetch quotes")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, MapHTTPError(resp, nil, s.client.ServiceName(), "fetch quotes")
	}

	elems, err := decodeList(resp.Body)
	if err != nil {
		return nil, domain.NewUnavailableError(s.client.ServiceName(), fmt.Sprintf("decoding quotes: %v", err))
	}

	quotes := make([]domain.Quote, 0, len(elems))

	for _, raw := range elems {
		var r remoteQuote
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}

		quotes = append(quotes, r.toDomain())
	}

	logger.Log(ctx, logging.LevelTrace, "translated remote quotes",
		slog.Int("received", len(elems)),
		slog.Int("translated", len(quotes)),
	)

	return quotes, nil
}

// PostQuote implements ports.QuoteSource.
func (s *QuoteSource) PostQuote(ctx context.Context, q domain.Quote) error {
	body, err := json.Marshal(remoteQuote{Text: q.Text, Category: q.Category})
	if err != nil {
		return fmt.Errorf("encoding quote: %w", err)
	}

	resp, err := s.client.Post(ctx, s.path, bytes.NewReader(body))
	if err != nil {
		return MapHTTPError(nil, err, s.client.ServiceName(), "post quote")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return MapHTTPError(resp, nil, s.client.ServiceName(), "post quote")
	}

	logging.FromContextOr(ctx, s.logger).DebugContext(ctx, "quote posted to remote",
		slog.Int("status", resp.StatusCode))

	return nil
}

// Name implements ports.HealthChecker.
func (s *QuoteSource) Name() string {
	return HealthCheckName
}

// Check implements ports.HealthChecker. It succeeds when the collection
// answers 200.
func (s *QuoteSource) Check(ctx context.Context) error {
	resp, err := s.client.Get(ctx, s.path)
	if err != nil {
		return MapHTTPError(nil, err, s.client.ServiceName(), "health check")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return MapHTTPError(resp, nil, s.client.ServiceName(), "health check")
	}

	return nil
}
