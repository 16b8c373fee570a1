package app

import "github.com/jsamuelsen/quotebook/internal/ports"

// Event types published by QuoteService.
const (
	EventQuoteAdded     = "quotes.added"
	EventQuotesImported = "quotes.imported"
	EventQuotesSynced   = "quotes.synced"
)

type quoteEvent struct {
	eventType string
	payload   any
}

var _ ports.Event = quoteEvent{}

func newEvent(eventType string, payload any) quoteEvent {
	return quoteEvent{eventType: eventType, payload: payload}
}

func (e quoteEvent) EventType() string { return e.eventType }

func (e quoteEvent) Payload() any { return e.payload }
