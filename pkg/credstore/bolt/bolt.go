// Package bolt provides a BBolt-backed credential store.
package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("credentials")

// recordV1 prefixes every stored value so an empty value is distinguishable
// from a missing key.
const recordV1 byte = 1

// Store implements credstore.Store backed by a BBolt database.
type Store struct {
	db    *bbolt.DB
	codec cryptox.Codec
}

var _ credstore.Store = (*Store)(nil)

// Open opens (or creates) the BBolt file at path. A nil codec stores values in
// plain text.
func Open(path string, codec cryptox.Codec) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	if codec == nil {
		codec = cryptox.Plain{}
	}
	return &Store{db: db, codec: codec}, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var record []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s: %w", key, credstore.ErrNotFound)
		}
		// data is only valid inside the transaction.
		record = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(record) == 0 || record[0] != recordV1 {
		return "", fmt.Errorf("%s: unknown record format", key)
	}

	plain, err := s.codec.Open(record[1:])
	if err != nil {
		return "", fmt.Errorf("open %q: %w", key, err)
	}
	return string(plain), nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.MultiSet(ctx, map[string]string{key: value})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.MultiRemove(ctx, key)
}

func (s *Store) MultiSet(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make(map[string][]byte, len(values))
	for k, v := range values {
		sealed, err := s.codec.Seal([]byte(v))
		if err != nil {
			return fmt.Errorf("seal %q: %w", k, err)
		}
		records[k] = append([]byte{recordV1}, sealed...)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		for k, rec := range records {
			if err := b.Put([]byte(k), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
