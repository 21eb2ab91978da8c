// Package filestore keeps credentials in a single JSON document on disk, the
// way the mobile clients keep them in platform preferences. Every operation
// re-reads the file so changes made by another process are picked up.
package filestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
)

const documentVersion = 1

type document struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"` // base64 of codec output
}

// Store implements credstore.Store on top of one file.
type Store struct {
	path  string
	codec cryptox.Codec

	mu sync.Mutex // serialises read-modify-write cycles within this process
}

var _ credstore.Store = (*Store)(nil)

// New returns a store writing to path. The parent directory is created when
// missing. A nil codec stores values in plain text (still base64 encoded).
func New(path string, codec cryptox.Codec) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if codec == nil {
		codec = cryptox.Plain{}
	}
	return &Store{path: path, codec: codec}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return nil }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}

	enc, ok := doc.Values[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return s.decode(key, enc)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.MultiSet(ctx, map[string]string{key: value})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.MultiRemove(ctx, key)
}

func (s *Store) MultiSet(ctx context.Context, values map[string]string) error {
	return s.update(ctx, func(doc *document) error {
		for k, v := range values {
			sealed, err := s.codec.Seal([]byte(v))
			if err != nil {
				return fmt.Errorf("seal %q: %w", k, err)
			}
			doc.Values[k] = base64.StdEncoding.EncodeToString(sealed)
		}
		return nil
	})
}

func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	return s.update(ctx, func(doc *document) error {
		for _, k := range keys {
			delete(doc.Values, k)
		}
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, func(doc *document) error {
		clear(doc.Values)
		return nil
	})
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(doc.Values))
	for k := range doc.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) update(ctx context.Context, fn func(doc *document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *Store) decode(key, enc string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("decode %q: %w", key, err)
	}
	plain, err := s.codec.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", key, err)
	}
	return string(plain), nil
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{Version: documentVersion, Values: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported credentials version %d", doc.Version)
	}
	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	return &doc, nil
}

// save writes to a temporary file and renames it over the old one so readers
// never see a half-written document.
func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}
