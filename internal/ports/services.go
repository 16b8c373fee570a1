// Package ports defines the contracts the quote book depends on. The app
// layer talks only to these interfaces; adapters under internal/adapters
// provide the implementations.
//
// Conventions:
//   - context.Context is always the first parameter
//   - values crossing a port are domain types, never wire DTOs
//   - failures are reported with domain errors (ErrNotFound, ErrUnavailable, ...)
package ports

//go:generate go tool mockery

import (
	"context"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

// KeyValueStore persists opaque values under string keys. The quote list and
// the last selected category each live under their own key.
type KeyValueStore interface {
	// Get returns the value stored under key.
	// Returns domain.ErrNotFound if the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the underlying handle.
	Close() error
}

// QuoteSource is the remote quote endpoint used for periodic reconciliation.
type QuoteSource interface {
	// FetchCandidates returns the remote records. They are not yet validated.
	// Returns domain.ErrUnavailable if the endpoint cannot be reached.
	FetchCandidates(ctx context.Context) ([]domain.Quote, error)

	// PostQuote announces a locally added quote to the remote endpoint.
	PostQuote(ctx context.Context, q domain.Quote) error
}

// EventPublisher fans out change notifications.
type EventPublisher interface {
	// Publish sends an event to every current subscriber.
	Publish(ctx context.Context, event Event) error
}

// Event represents a change to the quote book.
type Event interface {
	// EventType returns the type identifier for routing.
	EventType() string

	// Payload returns the event data for serialization.
	Payload() any
}
