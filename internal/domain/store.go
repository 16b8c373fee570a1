package domain

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// QuoteStore owns the quote list. Every exported method holds the store lock
// for its whole run, so callers never observe a half-applied mutation.
type QuoteStore struct {
	mu       sync.Mutex
	quotes   []Quote
	intn     func(n int) int
	lastSync time.Time
}

// StoreOption configures a QuoteStore.
type StoreOption func(*QuoteStore)

// WithRandom replaces the index source used by RandomPick. intn must return a
// value in [0, n).
func WithRandom(intn func(n int) int) StoreOption {
	return func(s *QuoteStore) {
		s.intn = intn
	}
}

// NewQuoteStore creates an empty store.
func NewQuoteStore(opts ...StoreOption) *QuoteStore {
	s := &QuoteStore{
		quotes: make([]Quote, 0),
		intn:   rand.IntN,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add appends a validated, non-duplicate quote and returns the stored value.
func (s *QuoteStore) Add(q Quote) (Quote, error) {
	q, err := NewQuote(q.Text, q.Category)
	if err != nil {
		return Quote{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.containsLocked(q) {
		return Quote{}, ErrDuplicateQuote
	}

	s.quotes = append(s.quotes, q)

	return q, nil
}

// ImportBatch validates and appends each element in order. Duplicates of
// existing quotes, or of quotes added earlier in the same batch, are skipped.
func (s *QuoteStore) ImportBatch(elems []json.RawMessage) ImportReport {
	var report ImportReport

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range elems {
		q, err := DecodeQuote(raw)
		if err != nil {
			report.Invalid++
			continue
		}

		if s.containsLocked(q) {
			report.Skipped++
			continue
		}

		s.quotes = append(s.quotes, q)
		report.Added++
	}

	return report
}

// MergeFromRemote reconciles remote records into the list. A remote record
// whose trimmed text equals a local text overwrites the first such local
// record's category. Otherwise it is appended. Blank remote records are
// ignored.
func (s *QuoteStore) MergeFromRemote(remote []Quote) MergeReport {
	var report MergeReport

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range remote {
		q, err := NewQuote(r.Text, r.Category)
		if err != nil {
			continue
		}

		idx := slices.IndexFunc(s.quotes, func(local Quote) bool {
			return local.Text == q.Text
		})

		if idx >= 0 {
			s.quotes[idx].Category = q.Category
			report.Updated++

			continue
		}

		s.quotes = append(s.quotes, q)
		report.Appended++
	}

	return report
}

// RandomPick returns a uniformly chosen quote matching filter. ok is false
// when nothing matches.
func (s *QuoteStore) RandomPick(filter CategoryFilter) (q Quote, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.quotes
	if !filter.IsAll() {
		pool = make([]Quote, 0, len(s.quotes))

		for _, candidate := range s.quotes {
			if filter.Matches(candidate) {
				pool = append(pool, candidate)
			}
		}
	}

	if len(pool) == 0 {
		return Quote{}, false
	}

	return pool[s.intn(len(pool))], true
}

// Categories returns the distinct categories in ascending order.
func (s *QuoteStore) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.quotes))
	out := make([]string, 0, len(s.quotes))

	for _, q := range s.quotes {
		if _, dup := seen[q.Category]; dup {
			continue
		}

		seen[q.Category] = struct{}{}
		out = append(out, q.Category)
	}

	slices.Sort(out)

	return out
}

// HasCategory reports whether any quote carries category.
func (s *QuoteStore) HasCategory(category string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.ContainsFunc(s.quotes, func(q Quote) bool { return q.Category == category })
}

// Snapshot returns a copy of the list in insertion order.
func (s *QuoteStore) Snapshot() []Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.quotes)
}

// Len returns the number of stored quotes.
func (s *QuoteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.quotes)
}

// Replace swaps in a whole list, typically one loaded from storage. Every
// record is trimmed. The first invalid record aborts the swap.
func (s *QuoteStore) Replace(quotes []Quote) error {
	next := make([]Quote, 0, len(quotes))

	for _, q := range quotes {
		clean, err := NewQuote(q.Text, q.Category)
		if err != nil {
			return err
		}

		next = append(next, clean)
	}

	s.mu.Lock()
	s.quotes = next
	s.mu.Unlock()

	return nil
}

// MarkSynced records the time of the last successful remote merge.
func (s *QuoteStore) MarkSynced(at time.Time) {
	s.mu.Lock()
	s.lastSync = at
	s.mu.Unlock()
}

// LastSync returns the time recorded by MarkSynced, or the zero time.
func (s *QuoteStore) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSync
}

func (s *QuoteStore) containsLocked(q Quote) bool {
	return slices.ContainsFunc(s.quotes, q.SameAs)
}
