package lock

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedis_AcquireRelease(t *testing.T) {
	s, client := newTestRedis(t)
	l := NewRedis(client, 50*time.Millisecond, WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()

	release, err := l.Acquire(ctx, "listing-1")
	assert.NoError(t, err)
	check.True(t, s.Exists("lock:listing:listing-1"))

	_, err = l.Acquire(ctx, "listing-1")
	check.True(t, errors.Is(err, ErrTimeout))

	release()
	check.False(t, s.Exists("lock:listing:listing-1"))

	again, err := l.Acquire(ctx, "listing-1")
	check.NoError(t, err)
	again()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	s, client := newTestRedis(t)
	l := NewRedis(client, 0, WithTTL(time.Second), WithPrefix("test:"))
	ctx := context.Background()

	release, err := l.Acquire(ctx, "listing-1")
	assert.NoError(t, err)

	// the lock expired and another process took it
	s.FastForward(2 * time.Second)
	assert.NoError(t, s.Set("test:listing-1", "someone-else"))

	release()
	value, err := s.Get("test:listing-1")
	check.NoError(t, err)
	check.Equal(t, "someone-else", value)
}

func TestRedis_ReleaseOnceAndReportsFailure(t *testing.T) {
	s, client := newTestRedis(t)
	var logs bytes.Buffer
	l := NewRedis(client, 0, WithLogger(zerolog.New(&logs)))
	ctx := context.Background()

	release, err := l.Acquire(ctx, "listing-1")
	assert.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release()
		}()
	}
	wg.Wait()
	check.False(t, s.Exists("lock:listing:listing-1"))
	check.Equal(t, "", logs.String())

	release, err = l.Acquire(ctx, "listing-2")
	assert.NoError(t, err)
	s.Close()
	release()
	check.True(t, strings.Contains(logs.String(), "failed to release lock"))
	check.True(t, strings.Contains(logs.String(), "lock:listing:listing-2"))
}
