package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AllCategories is the filter value that matches every quote.
const AllCategories = "All"

// NoQuotesMessage is shown when a filter matches nothing.
const NoQuotesMessage = "No quotes available for the selected category."

// Quote is a single text/category record. Values held by a QuoteStore are
// always trimmed and non-empty.
type Quote struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// NewQuote trims both fields and rejects blanks.
func NewQuote(text, category string) (Quote, error) {
	q := Quote{Text: strings.TrimSpace(text), Category: strings.TrimSpace(category)}

	if q.Text == "" {
		return Quote{}, NewValidationError("text", "must not be empty")
	}

	if q.Category == "" {
		return Quote{}, NewValidationError("category", "must not be empty")
	}

	return q, nil
}

// SameAs reports whether two quotes are duplicates: equal text and equal
// category after trimming.
func (q Quote) SameAs(other Quote) bool {
	return strings.TrimSpace(q.Text) == strings.TrimSpace(other.Text) &&
		strings.TrimSpace(q.Category) == strings.TrimSpace(other.Category)
}

// Render formats a pick for display. ok=false yields NoQuotesMessage.
func Render(q Quote, ok bool) string {
	if !ok {
		return NoQuotesMessage
	}

	return fmt.Sprintf("\"%s\" — [%s]", q.Text, q.Category)
}

// CategoryFilter selects quotes by exact category, or everything when it is
// AllCategories or empty.
type CategoryFilter string

// Matches reports whether q passes the filter.
func (f CategoryFilter) Matches(q Quote) bool {
	if f.IsAll() {
		return true
	}

	return q.Category == string(f)
}

// IsAll reports whether the filter is unrestricted.
func (f CategoryFilter) IsAll() bool {
	return f == "" || f == AllCategories
}

// ImportReport tallies one bulk import.
type ImportReport struct {
	Added   int `json:"addedCount"`
	Skipped int `json:"skippedCount"`
	Invalid int `json:"invalidCount"`
}

// Summary is the human readable outcome line.
func (r ImportReport) Summary() string {
	return fmt.Sprintf("Import complete — added: %d, skipped (duplicates): %d, invalid: %d.",
		r.Added, r.Skipped, r.Invalid)
}

// MergeReport tallies one remote reconciliation.
type MergeReport struct {
	Updated  int `json:"updated"`
	Appended int `json:"appended"`
}

// DefaultQuotes seeds an empty or unreadable book.
func DefaultQuotes() []Quote {
	return []Quote{
		{Text: "The best way to predict the future is to invent it.", Category: "Motivation"},
		{Text: "Life is what happens when you're busy making other plans.", Category: "Life"},
		{Text: "Happiness depends upon ourselves.", Category: "Philosophy"},
		{Text: "Do something today that your future self will thank you for.", Category: "Motivation"},
	}
}

// DecodeDocument splits an import payload into its elements. Anything other
// than a top-level JSON array is ErrMalformedDocument.
func DecodeDocument(data []byte) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	if elems == nil {
		return nil, ErrMalformedDocument
	}

	return elems, nil
}

// DecodeQuote validates one import element. It must be an object whose
// exact "text" and "category" keys hold strings that are non-empty after
// trimming. Keys that differ only in case are ignored.
func DecodeQuote(raw json.RawMessage) (Quote, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return Quote{}, NewValidationError("", "element is not an object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Quote{}, NewValidationErrorWithValue("", "element is not an object", trimmed)
	}

	text, err := stringField(fields, "text")
	if err != nil {
		return Quote{}, err
	}

	category, err := stringField(fields, "category")
	if err != nil {
		return Quote{}, err
	}

	return NewQuote(text, category)
}

// DecodeQuotes decodes a saved list. Every element must pass DecodeQuote.
func DecodeQuotes(data []byte) ([]Quote, error) {
	elems, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(elems))

	for i, raw := range elems {
		q, err := DecodeQuote(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		quotes = append(quotes, q)
	}

	return quotes, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", NewValidationError(key, "is required")
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", NewValidationErrorWithValue(key, "must be a string", string(raw))
	}

	return v, nil
}
