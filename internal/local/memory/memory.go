// Package memory is an in-process local store, used for tests and for
// running without any persistence.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"courses/internal/core"
	"courses/internal/local"
)

// Store keeps the encoded array so callers never share slices with it.
type Store struct {
	mu   sync.Mutex
	data []byte
}

func New() *Store {
	return &Store{}
}

// NewFromFile seeds the store from an exported JSON array. A missing file
// gives an empty store.
func NewFromFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed, err := core.DecodeImport(b)
	if err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	s := New()
	if err := local.Replace(context.Background(), s, seed); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Load(_ context.Context) ([]core.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return local.Decode(s.data)
}

func (s *Store) Update(_ context.Context, fn local.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := local.Decode(s.data)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	b, err := local.Encode(next)
	if err != nil {
		return err
	}
	s.data = b
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

func (s *Store) Close() error { return nil }

var _ local.Store = (*Store)(nil)
