package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired holder never releases someone else's lock.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Redis is a Locker shared by every process using the same Redis server.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long a held key survives a crashed holder.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryInterval sets the polling interval while a key is held elsewhere.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithLogger sets where failed releases are reported.
func WithLogger(l zerolog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// WithPrefix namespaces lock keys.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis returns a Locker backed by client that waits at most wait.
func NewRedis(client redis.UniversalClient, wait time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "lock:listing:",
		ttl:    30 * time.Second,
		wait:   wait,
		retry:  10 * time.Millisecond,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire polls SET NX until it owns key or gives up.
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	name := r.prefix + key
	token := uuid.NewString()

	var deadline time.Time
	if r.wait > 0 {
		deadline = time.Now().Add(r.wait)
	}

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the holder's ctx may already be done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
				// the key expires after its TTL
				r.logger.Warn().Err(err).Str("key", name).Msg("failed to release lock")
			}
		})
	}, nil
}
