package persistence

import (
	"context"
	"fmt"

	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

// Backend is a key-value store that can also report its health.
type Backend interface {
	ports.KeyValueStore
	ports.HealthChecker
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "bolt":
		b, err := NewBolt(cfg.Path)
		if err != nil {
			return nil, err
		}

		return b, nil
	case "sqlite":
		s, err := NewSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}

		return s, nil
	case "postgres":
		p, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
