// Package clients provides the outbound HTTP client used to reach the remote
// quote source.
package clients

import "errors"

// Transport-level failures. The acl package maps them to domain errors.
var (
	// ErrCircuitOpen means the breaker refused the request without sending it.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last attempt's error once every attempt
	// has failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
