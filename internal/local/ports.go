// Package local defines the fallback store used when the remote API is
// unreachable. A store holds one JSON array of purchases under a single key,
// and every mutation is a read-modify-write of that whole array.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"courses/internal/core"
)

// DefaultKey is the key the purchases array lives under.
const DefaultKey = "courses-db"

// UpdateFunc receives the current array and returns its replacement.
type UpdateFunc func(current []core.Purchase) ([]core.Purchase, error)

// Store is the port implemented by memory, SQLite and Redis backends.
type Store interface {
	// Load returns the stored array; a missing key yields an empty slice.
	Load(ctx context.Context) ([]core.Purchase, error)
	// Update applies fn atomically with respect to other updates.
	Update(ctx context.Context, fn UpdateFunc) error
	// Clear removes the key entirely.
	Clear(ctx context.Context) error
	Close() error
}

// Pinger is implemented by stores that hold a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the store's connection. Stores without one always succeed.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ErrNotFound is returned by Remove when no purchase has the given id.
var ErrNotFound = errors.New("purchase not found in local store")

// Decode parses a stored array. Empty input is an empty array.
func Decode(data []byte) ([]core.Purchase, error) {
	if len(data) == 0 {
		return []core.Purchase{}, nil
	}
	var out []core.Purchase
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode local purchases: %w", err)
	}
	if out == nil {
		out = []core.Purchase{}
	}
	return out, nil
}

// Encode serialises the array; nil is written as [].
func Encode(purchases []core.Purchase) ([]byte, error) {
	if purchases == nil {
		purchases = []core.Purchase{}
	}
	b, err := json.Marshal(purchases)
	if err != nil {
		return nil, fmt.Errorf("encode local purchases: %w", err)
	}
	return b, nil
}

// Append adds p at the end of the stored array.
func Append(ctx context.Context, s Store, p core.Purchase) error {
	return s.Update(ctx, func(cur []core.Purchase) ([]core.Purchase, error) {
		return append(cur, p), nil
	})
}

// Remove filters out the purchase with the given id.
func Remove(ctx context.Context, s Store, id string) error {
	return s.Update(ctx, func(cur []core.Purchase) ([]core.Purchase, error) {
		out := make([]core.Purchase, 0, len(cur))
		for _, p := range cur {
			if p.ID != id {
				out = append(out, p)
			}
		}
		if len(out) == len(cur) {
			return nil, ErrNotFound
		}
		return out, nil
	})
}

// Replace overwrites the stored array.
func Replace(ctx context.Context, s Store, purchases []core.Purchase) error {
	return s.Update(ctx, func([]core.Purchase) ([]core.Purchase, error) {
		return purchases, nil
	})
}

// Find returns the purchase with the given id.
func Find(ctx context.Context, s Store, id string) (core.Purchase, bool, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return core.Purchase{}, false, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, true, nil
		}
	}
	return core.Purchase{}, false, nil
}
