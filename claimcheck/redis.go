package claimcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a ContentStore backed by Redis. Keys are namespaced with a
// fixed prefix so claim-check blobs can coexist with other keyspaces.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix namespaces blob keys; defaults to "claimcheck:".
	Prefix string
	// TTL applies an expiry to stored blobs. Zero means no expiry; retention
	// is then a deployment concern (e.g. tied to session retention).
	TTL time.Duration
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{Prefix: "claimcheck:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// Put stores data under the namespaced token key, applying the configured TTL.
func (s *RedisStore) Put(ctx context.Context, token string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+token, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", token, err)
	}
	return nil
}

// Get returns the blob stored under token or ErrTokenMissing.
func (s *RedisStore) Get(ctx context.Context, token string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", token, err)
	}
	return data, nil
}
