package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/procura/internal/logging"
)

// Redis defaults.
const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryEvery = 100 * time.Millisecond
	DefaultKeyPrefix  = "lock:process:"
)

// Redis is a Locker backed by redislock. Waiting callers poll at a fixed
// interval until ctx is done.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	every  time.Duration
	prefix string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long a lock survives a crashed holder. It must exceed the
// longest reconciliation pass.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithRetryEvery sets the polling interval of waiting callers.
func WithRetryEvery(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.every = d
	}
}

// WithKeyPrefix namespaces lock keys.
func WithKeyPrefix(p string) RedisOption {
	return func(r *Redis) {
		r.prefix = p
	}
}

// NewRedis wraps a connected client.
func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: redislock.New(rdb),
		ttl:    DefaultTTL,
		every:  DefaultRetryEvery,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock obtains the lock for key, retrying until ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lk, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.every),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return sync.OnceFunc(func() {
		// The caller's context may already be cancelled; release anyway.
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logging.FromContext(ctx).Warn("failed to release lock", "key", key, "error", err)
		}
	}), nil
}
