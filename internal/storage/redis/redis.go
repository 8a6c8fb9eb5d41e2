// redis — хранилище учётных данных в Redis, общее для нескольких процессов
// (headless-установки, watch-режим на сервере).
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pribylovaa/go-cheffrey-client/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store хранит каждый ключ как Redis Hash с полями:
//   - v  — значение;
//   - at — время записи (unix).
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Пустой prefix — "cheffrey:cred:". ttl <= 0 — ключи без срока жизни.
func New(ctx context.Context, redisURL, prefix string, ttl time.Duration) (*Store, error) {
	const op = "storage.redis.New"

	if prefix == "" {
		prefix = "cheffrey:cred:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	const op = "storage.redis.Get"

	v, err := s.rdb.HGet(ctx, s.key(key), "v").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	const op = "storage.redis.Set"

	k := s.key(key)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, map[string]string{
		"v":  value,
		"at": strconv.FormatInt(time.Now().Unix(), 10),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	} else {
		pipe.Persist(ctx, k)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "storage.redis.Delete"

	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UpdatedAt возвращает время последней записи ключа.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	const op = "storage.redis.UpdatedAt"

	raw, err := s.rdb.HGet(ctx, s.key(key), "at").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return time.Unix(unix, 0).UTC(), nil
}

func (s *Store) Close() error { return s.rdb.Close() }

var _ storage.KV = (*Store)(nil)
