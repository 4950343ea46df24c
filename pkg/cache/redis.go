package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces one family's partitions, e.g. "clientcache:receipts".
	KeyPrefix string
	// EntryTTL bounds how long Redis keeps an entry. It is housekeeping only:
	// freshness is still decided by the coordinator from FetchedAt. Zero keeps
	// entries until Clear.
	EntryTTL time.Duration
}

// RedisStore is a Store backed by Redis, for sharing a family's cache between
// processes. Entries are stored as JSON under "<prefix>:<key>".
type RedisStore[K comparable, P any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	prefix      string
	ttl         time.Duration
}

// NewRedisStore creates and connects a new RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore[K comparable, P any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStore[K, P], error) {
	if cfg.KeyPrefix == "" {
		return nil, errors.New("redis key prefix is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Str("key_prefix", cfg.KeyPrefix).Msg("Successfully connected to Redis.")

	return NewRedisStoreWithClient[K, P](rdb, cfg.KeyPrefix, cfg.EntryTTL, logger), nil
}

// NewRedisStoreWithClient wraps an existing client. Several families may share
// one client as long as their prefixes differ.
func NewRedisStoreWithClient[K comparable, P any](
	client *redis.Client,
	prefix string,
	ttl time.Duration,
	logger zerolog.Logger,
) *RedisStore[K, P] {
	return &RedisStore[K, P]{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisStore").Str("key_prefix", prefix).Logger(),
		prefix:      prefix,
		ttl:         ttl,
	}
}

// Get retrieves and decodes the entry for key. A missing key is not an error.
func (s *RedisStore[K, P]) Get(ctx context.Context, key K) (*Entry[P], error) {
	stringKey := s.key(key)
	data, err := s.redisClient.Get(ctx, stringKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}

	var entry Entry[P]
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached entry.")
		return nil, fmt.Errorf("failed to unmarshal entry for key %s: %w", stringKey, err)
	}
	return &entry, nil
}

// Put stores payload stamped with now.
func (s *RedisStore[K, P]) Put(ctx context.Context, key K, payload P, now time.Time) error {
	stringKey := s.key(key)
	data, err := json.Marshal(Entry[P]{Payload: payload, FetchedAt: now})
	if err != nil {
		return fmt.Errorf("failed to marshal entry for key %s: %w", stringKey, err)
	}
	if err := s.redisClient.Set(ctx, stringKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", stringKey, err)
	}
	s.logger.Debug().Str("key", stringKey).Msg("Stored entry in Redis.")
	return nil
}

// Clear deletes every key under the store's prefix.
func (s *RedisStore[K, P]) Clear(ctx context.Context) error {
	iter := s.redisClient.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed for prefix %s: %w", s.prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed for prefix %s: %w", s.prefix, err)
	}
	s.logger.Debug().Int("keys", len(keys)).Msg("Cleared Redis partitions.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore[K, P]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}

func (s *RedisStore[K, P]) key(key K) string {
	return fmt.Sprintf("%s:%v", s.prefix, key)
}
