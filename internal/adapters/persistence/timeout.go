package persistence

import (
	"context"
	"time"
)

type timed struct {
	Backend
	timeout time.Duration
}

// WithTimeout bounds every Get and Set on b with timeout. Health checks
// pass through unchanged; the registry applies its own deadline. A
// non-positive timeout returns b as is.
func WithTimeout(b Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return b
	}

	return &timed{Backend: b, timeout: timeout}
}

func (t *timed) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.Backend.Get(ctx, key)
}

func (t *timed) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.Backend.Set(ctx, key, value)
}
