// Package runlock provides a Redis lease so only one renewal pass runs at a
// time across replicas.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetting/internal/utils"

	"github.com/redis/go-redis/v9"
)

var ErrLeaseHeld = errors.New("lease is held by another worker")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "vetting:lock:"}
}

// Acquire takes the named lease for ttl. The returned func releases it.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.prefix + name
	token := utils.NanoID()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLeaseHeld)
	}

	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release lease %s: %w", name, err)
		}
		return nil
	}

	return release, nil
}

// Connect parses a redis:// URL and verifies the server responds.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
