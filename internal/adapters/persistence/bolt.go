package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

const boltBucket = "kv"

var errBucketMissing = errors.New("bucket missing")

// Bolt stores values in a single bbolt bucket.
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the bbolt file at path.
func NewBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt file: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("creating bolt bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Get implements ports.KeyValueStore.
func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket == nil {
			return errBucketMissing
		}

		v := bucket.Get([]byte(key))
		if v == nil {
			return domain.ErrNotFound
		}

		// v is only valid inside the transaction.
		out = slices.Clone(v)

		return nil
	})

	return out, err
}

// Set implements ports.KeyValueStore.
func (b *Bolt) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket == nil {
			return errBucketMissing
		}

		return bucket.Put([]byte(key), value)
	})
}

// Close implements ports.KeyValueStore.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Name implements ports.HealthChecker.
func (b *Bolt) Name() string {
	return "bolt"
}

// Check implements ports.HealthChecker.
func (b *Bolt) Check(context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(boltBucket)) == nil {
			return errBucketMissing
		}

		return nil
	})
}
