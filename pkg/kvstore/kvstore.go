// Package kvstore wraps a local bbolt database as the ordered key-value
// store shared by the lexicon, blob store, barrels, and argument index.
// Each component works inside its own bucket.
package kvstore

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// MaxKeySize is the longest key a bucket accepts. Empty keys are rejected too.
const MaxKeySize = bolt.MaxKeySize

// Store is the view of one keyspace that components depend on.
//
// Get reports a missing key as an error wrapping errors.ErrNotFound, which is
// distinct from a present key holding an empty value. Iterate visits keys in
// byte order; the slices passed to fn are copies owned by the caller.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	NewBatch() *Batch
	Write(b *Batch) error
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// DB is an open bbolt file.
type DB struct {
	db       *bolt.DB
	path     string
	readOnly bool
	logger   *slog.Logger
}

// Open opens (creating if needed) the database at cfg.Path. A second Open of
// the same file blocks on the file lock until cfg.OpenTimeout expires.
func Open(cfg config.StoreConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, apperrors.Invalidf("store path is empty")
	}
	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{
		Timeout:  cfg.OpenTimeout,
		ReadOnly: cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.Path, err)
	}
	db.NoSync = cfg.NoSync
	d := &DB{
		db:       db,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
		logger:   slog.Default().With("component", "kvstore"),
	}
	d.logger.Info("store opened", "path", cfg.Path, "read_only", cfg.ReadOnly, "no_sync", cfg.NoSync)
	return d, nil
}

// Bucket returns the keyspace name, creating it unless the store is
// read-only. A missing bucket in a read-only store behaves as empty.
func (d *DB) Bucket(name string) (*Bucket, error) {
	if name == "" {
		return nil, apperrors.Invalidf("bucket name is empty")
	}
	if !d.readOnly {
		err := d.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(name))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", name, err)
		}
	}
	return &Bucket{db: d.db, name: []byte(name)}, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close releases the file lock.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	d.logger.Info("store closed", "path", d.path)
	return nil
}

var _ Store = (*Bucket)(nil)

// Bucket is a Store scoped to one bbolt bucket.
type Bucket struct {
	db   *bolt.DB
	name []byte
}

func (b *Bucket) Get(key []byte) ([]byte, error) {
	var (
		value []byte
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return nil
		}
		// Seek rather than Get so an empty stored value is not confused
		// with an absent key.
		k, v := bk.Cursor().Seek(key)
		if k != nil && bytes.Equal(k, key) {
			found = true
			value = cloneBytes(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading key %q: %w", key, err)
	}
	if !found {
		return nil, fmt.Errorf("key %q: %w", key, apperrors.ErrNotFound)
	}
	return value, nil
}

func (b *Bucket) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return apperrors.Statef("bucket %s does not exist", b.name)
		}
		if value == nil {
			value = []byte{}
		}
		return bk.Put(key, value)
	})
}

func (b *Bucket) NewBatch() *Batch {
	return &Batch{}
}

// Write applies every operation of batch in a single transaction: either all
// of them become durable or none do.
func (b *Bucket) Write(batch *Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return apperrors.Statef("bucket %s does not exist", b.name)
		}
		for _, op := range batch.ops {
			if op.delete {
				if err := bk.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := bk.Put(op.key, op.value); err != nil {
				return fmt.Errorf("put %q: %w", op.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing batch of %d ops: %w", batch.Len(), err)
	}
	return nil
}

func (b *Bucket) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.name)
		if bk == nil {
			return nil
		}
		c := bk.Cursor()
		var k, v []byte
		if len(prefix) == 0 {
			k, v = c.First()
		} else {
			k, v = c.Seek(prefix)
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(cloneBytes(k), cloneBytes(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func cloneBytes(b []byte) []byte {
	return append([]byte{}, b...)
}
