// Package kv is the durable backing of the emulator: a thin JSON-document
// layer over a redis-compatible store. By default it boots an embedded
// miniredis instance so the emulator stays fully self-contained; pointing
// the config at a real redis address survives process restarts.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/config"
)

type Store struct {
	client   *redis.Client
	prefix   string
	embedded *miniredis.Miniredis
	logger   zerolog.Logger
}

func NewStore(cfg *config.PersistenceConfig, logger zerolog.Logger) (*Store, error) {
	var embedded *miniredis.Miniredis

	addr := cfg.Address
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded store: %w", err)
		}
		embedded = mr
		addr = mr.Addr()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if embedded != nil {
			embedded.Close()
		}
		return nil, fmt.Errorf("failed to connect to persistence backend: %w", err)
	}

	return &Store{
		client:   client,
		prefix:   cfg.KeyPrefix,
		embedded: embedded,
		logger:   logger.With().Str("component", "kv").Logger(),
	}, nil
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

// GetJSON loads the document stored under key into v. A missing document
// returns (false, nil). A read or decode failure degrades to "no persisted
// state": it is logged and reported as absent, so a corrupt cache behaves
// like a cold start instead of crashing the emulator.
func (s *Store) GetJSON(ctx context.Context, name string, v any) (bool, error) {
	val, err := s.client.Get(ctx, s.key(name)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", name).Msg("read failed, treating as absent")
		return false, nil
	}

	if err := json.Unmarshal([]byte(val), v); err != nil {
		s.logger.Warn().Err(err).Str("key", name).Msg("corrupt document, treating as absent")
		return false, nil
	}

	return true, nil
}

func (s *Store) SetJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", name, err)
	}

	if err := s.client.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist %s document: %w", name, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.client.Del(ctx, s.key(name)).Err()
}

// Clear removes every document under the store's key prefix.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan persisted keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear persisted keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Store) Close() error {
	err := s.client.Close()
	if s.embedded != nil {
		s.embedded.Close()
	}
	return err
}
