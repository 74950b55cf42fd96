// Package kvstore wraps the external K/V store used for cross-restart
// dedup flags and small structured snapshots, all with TTL semantics.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Flag key namespaces. Flags throttle external load: they are set BEFORE
// the fetch so a single-shot failure is not retried until the TTL lapses.
const (
	NamespaceGoodInfoDividend = "goodinfo:dividend:"
	NamespaceYahooDividend    = "yahoo:dividend:"
	NamespaceTraceQuote       = "tracequote:"
)

// FlagTTL is the default dedup-flag lifetime.
const FlagTTL = 72 * time.Hour

// Store is the pooled K/V client.
type Store struct {
	client *redis.Client
	log    zerolog.Logger
}

// Config holds connection settings.
type Config struct {
	Addr     string
	Account  string
	Password string
	DB       int
}

// New connects to the K/V store and verifies the connection.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Account,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping kv store: %w", err)
	}

	return &Store{
		client: client,
		log:    log.With().Str("component", "kvstore").Logger(),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.client.Close() }

// SetFlag sets a short-lived dedup flag.
func (s *Store) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set flag %s: %w", key, err)
	}
	return nil
}

// HasFlag reports whether a dedup flag is still live.
func (s *Store) HasFlag(ctx context.Context, key string) (bool, error) {
	if err := s.client.Get(ctx, key).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read flag %s: %w", key, err)
	}
	return true, nil
}

// SetValue stores a msgpack-coded value with a TTL (0 = no expiry).
func (s *Store) SetValue(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GetValue loads a msgpack-coded value. Returns false when the key is
// absent or expired.
func (s *Store) GetValue(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
