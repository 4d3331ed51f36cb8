package securestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable is an exported constant or variable used by the secure store.
var ErrBackendUnavailable = errors.New("keystore backend unavailable")

// RedisKeystore is a [Keystore] backed by Redis, for deployments where the
// secure facility is a remote vault rather than on-device hardware. Entries
// carry no TTL; the store owns their lifecycle.
type RedisKeystore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisKeystore creates a [RedisKeystore] under the given key namespace.
func NewRedisKeystore(client redis.UniversalClient, prefix string) *RedisKeystore {
	if prefix == "" {
		prefix = "sk"
	}
	return &RedisKeystore{redis: client, prefix: prefix}
}

func (r *RedisKeystore) key(service, key string) string {
	return r.prefix + ":" + service + ":" + key
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (r *RedisKeystore) Get(ctx context.Context, service, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.key(service, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return data, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (r *RedisKeystore) Set(ctx context.Context, service, key string, value []byte) error {
	if err := r.redis.Set(ctx, r.key(service, key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (r *RedisKeystore) Delete(ctx context.Context, service, key string) error {
	if err := r.redis.Del(ctx, r.key(service, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteAll removes every entry under a service with a SCAN loop. This is
// O(n) over the service's entries and must not run in request hot paths.
//
// DeleteAll may return an error when input validation, dependency calls, or security checks fail.
func (r *RedisKeystore) DeleteAll(ctx context.Context, service string) error {
	pattern := r.prefix + ":" + service + ":*"
	var cursor uint64

	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if len(keys) > 0 {
			if err := r.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping describes the ping operation and its observable behavior.
func (r *RedisKeystore) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
