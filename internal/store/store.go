// Package store persists local state as one JSON file per key in a
// directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned for missing keys and unknown names.
var ErrNotFound = errors.New("not found")

// Keys of the files kept in the state directory.
const (
	KeyKnownAssets     = "known_assets"
	KeyPortfolios      = "portfolios"
	KeyActivePortfolio = "active_portfolio"
	KeyCategories      = "categories"
	KeyPriceCache      = "price_cache"
	KeyReportHistory   = "report_history"
)

type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) string { return filepath.Join(s.dir, key+".json") }

// Get decodes key into v, or returns ErrNotFound.
func (s *Store) Get(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key, v)
}

func (s *Store) getLocked(key string, v any) error {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Put replaces key with v. The write goes through a temp file and a rename.
func (s *Store) Put(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(key, v)
}

func (s *Store) putLocked(key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// update reads key (or starts from the zero value when missing), applies fn
// and writes the result back under one lock.
func update[T any](s *Store, key string, def func() T, fn func(*T) error) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v T
	if err := s.getLocked(key, &v); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return v, err
		}
		if def != nil {
			v = def()
		}
	}
	if err := fn(&v); err != nil {
		return v, err
	}
	return v, s.putLocked(key, v)
}
