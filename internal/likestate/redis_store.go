// Package likestate stores the set of insight slugs a browsing client has
// liked. It is client-scoped state, not shared engagement data: the shared
// counters live on the insight record itself.
package likestate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the string-array KV capability the engagement service needs. The
// value is the full liked-slug set for one client, read and written whole,
// mirroring how a browser keeps it as a single JSON array in local storage.
type Store interface {
	LikedSlugs(ctx context.Context, clientID string) ([]string, error)
	SaveLikedSlugs(ctx context.Context, clientID string, slugs []string) error
}

// RedisStore implements Store on Redis, one JSON-encoded array per client.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed like-state store.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "liked:",
		ttl:    365 * 24 * time.Hour,
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "liked:",
		ttl:    365 * 24 * time.Hour,
	}
}

func (s *RedisStore) key(clientID string) string {
	return s.prefix + clientID
}

func (s *RedisStore) LikedSlugs(ctx context.Context, clientID string) ([]string, error) {
	raw, err := s.client.Get(ctx, s.key(clientID)).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read liked slugs: %w", err)
	}

	var slugs []string
	if err := json.Unmarshal([]byte(raw), &slugs); err != nil {
		return nil, fmt.Errorf("unmarshal liked slugs: %w", err)
	}
	return slugs, nil
}

func (s *RedisStore) SaveLikedSlugs(ctx context.Context, clientID string, slugs []string) error {
	if slugs == nil {
		slugs = []string{}
	}
	encoded, err := json.Marshal(slugs)
	if err != nil {
		return fmt.Errorf("marshal liked slugs: %w", err)
	}
	if err := s.client.Set(ctx, s.key(clientID), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("save liked slugs: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
