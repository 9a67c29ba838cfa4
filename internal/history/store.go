// Package history keeps a bounded journal of snapshot operations in a bolt
// database under the state directory.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	bolt "go.etcd.io/bbolt"
)

// Store provides type-safe key-value storage. Scan visits keys in
// ascending byte order.
type Store[T any] interface {
	Get(ctx context.Context, key string) (*T, error)
	Set(ctx context.Context, key string, value *T) error
	Delete(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, prefix string, fn func(key string, value *T) error) error
	Close() error
}

var ErrNotFound = errdefs.ErrNotFound

// lockTimeout bounds how long a transaction waits for the file lock held by
// another procsnap process.
const lockTimeout = 5 * time.Second

// BoltStore is a bolt-backed Store[T]. The database is opened for the
// duration of each transaction only, so the daemon and the history command
// can use the same file without holding each other off.
type BoltStore[T any] struct {
	path   string
	bucket []byte
}

// NewBoltStore creates the database at dbPath with the given bucket.
func NewBoltStore[T any](dbPath string, bucketName string) (*BoltStore[T], error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	s := &BoltStore[T]{path: dbPath, bucket: []byte(bucketName)}
	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return s, nil
}

// OpenBoltStore opens an existing database without creating anything.
// Reads from a database that does not exist yet see an empty bucket.
func OpenBoltStore[T any](dbPath string, bucketName string) *BoltStore[T] {
	return &BoltStore[T]{path: dbPath, bucket: []byte(bucketName)}
}

func (s *BoltStore[T]) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{
		Timeout:        lockTimeout,
		ReadOnly:       readOnly,
		NoFreelistSync: true,
		FreelistType:   bolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", s.path, err)
	}
	return db, nil
}

func (s *BoltStore[T]) update(fn func(*bolt.Tx) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

// view runs fn against the bucket, or not at all when the database or the
// bucket does not exist yet.
func (s *BoltStore[T]) view(fn func(*bolt.Bucket) error) error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

// Get retrieves a value by key
func (s *BoltStore[T]) Get(ctx context.Context, key string) (*T, error) {
	var (
		value T
		found bool
	)
	err := s.view(func(b *bolt.Bucket) error {
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return &value, nil
}

// Set stores a value by key
func (s *BoltStore[T]) Set(ctx context.Context, key string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Delete removes keys in a single transaction.
func (s *BoltStore[T]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scan iterates over all keys with the given prefix
func (s *BoltStore[T]) Scan(ctx context.Context, prefix string, fn func(key string, value *T) error) error {
	return s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var value T
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("failed to unmarshal value for key %s: %w", string(k), err)
			}
			if err := fn(string(k), &value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close is a no-op; nothing stays open between transactions.
func (s *BoltStore[T]) Close() error {
	return nil
}
