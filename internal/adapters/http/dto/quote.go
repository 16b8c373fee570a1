package dto

import (
	"time"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

// MaxFieldLength caps text and category on input.
const MaxFieldLength = 2000

// Quote is the wire form of a quote.
type Quote struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// FromDomain converts a domain quote.
func FromDomain(q domain.Quote) Quote {
	return Quote{Text: q.Text, Category: q.Category}
}

// FromDomainList converts a slice, never returning nil.
func FromDomainList(qs []domain.Quote) []Quote {
	out := make([]Quote, 0, len(qs))
	for _, q := range qs {
		out = append(out, FromDomain(q))
	}

	return out
}

// AddQuoteRequest is the body of POST /quotes.
type AddQuoteRequest struct {
	Text     string `json:"text"     validate:"notblank,max=2000"`
	Category string `json:"category" validate:"notblank,max=2000"`
}

// AddQuoteResponse is returned with 201. Warning is set when the quote was
// added but could not be saved.
type AddQuoteResponse struct {
	Quote   Quote  `json:"quote"`
	Warning string `json:"warning,omitempty"`
}

// ListQuotesRequest is bound from the list query string.
type ListQuotesRequest struct {
	PaginationRequest

	// Category narrows the list. Empty or "All" lists everything.
	Category string `form:"category" validate:"max=2000"`
}

// RandomQuoteResponse is one pick. Quote is absent when nothing matched;
// Display then carries domain.NoQuotesMessage.
type RandomQuoteResponse struct {
	Quote    *Quote `json:"quote,omitempty"`
	Display  string `json:"display"`
	Category string `json:"category"`
}

// CategoriesResponse lists the distinct categories and the saved filter.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
	Selected   string   `json:"selected"`
}

// SelectionRequest is the body of PUT /quotes/selection.
type SelectionRequest struct {
	Category string `json:"category" validate:"max=2000"`
}

// SelectionResponse reports the saved filter.
type SelectionResponse struct {
	Category string `json:"category"`
}

// ImportResponse reports one import.
type ImportResponse struct {
	domain.ImportReport

	Summary string `json:"summary"`
	Warning string `json:"warning,omitempty"`
}

// SyncResponse reports one reconciliation with the remote source.
type SyncResponse struct {
	domain.MergeReport

	LastSync *time.Time `json:"lastSync,omitempty"`
	Warning  string     `json:"warning,omitempty"`
}
