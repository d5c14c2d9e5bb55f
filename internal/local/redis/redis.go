// Package redis stores the local purchases array under one Redis key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"courses/internal/core"
	"courses/internal/local"
)

// maxUpdateAttempts bounds optimistic-lock retries in Update.
const maxUpdateAttempts = 5

type Store struct {
	client *redis.Client
	key    string
}

// NewStore connects to redisURL and verifies the connection.
func NewStore(ctx context.Context, redisURL, key string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "key", key)
	return NewWithClient(client, key), nil
}

func NewWithClient(client *redis.Client, key string) *Store {
	if key == "" {
		key = local.DefaultKey
	}
	return &Store{client: client, key: key}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Load(ctx context.Context) ([]core.Purchase, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []core.Purchase{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	return local.Decode(data)
}

// Update runs fn under WATCH and writes the result in a MULTI block,
// retrying when another writer touched the key in between.
func (s *Store) Update(ctx context.Context, fn local.UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get %s: %w", s.key, err)
		}
		cur, err := local.Decode(data)
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, b, 0)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			slog.DebugContext(ctx, "Redis key changed during update, retrying", "key", s.key, "attempt", attempt)
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too much contention", s.key)
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ local.Store = (*Store)(nil)
