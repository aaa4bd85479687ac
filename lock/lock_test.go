package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestLocal_Exclusive(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside, total := 0, 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "listing-1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			total++
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	check.Equal(t, 1, maxInside)
	check.Equal(t, 20, total)
	check.Equal(t, 0, len(l.slots))
}

func TestLocal_Timeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "listing-1")
	assert.NoError(t, err)

	_, err = l.Acquire(ctx, "listing-1")
	check.True(t, errors.Is(err, ErrTimeout))

	// other keys are independent
	other, err := l.Acquire(ctx, "listing-2")
	check.NoError(t, err)
	other()

	release()
	release() // second call is a no-op

	again, err := l.Acquire(ctx, "listing-1")
	check.NoError(t, err)
	again()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(0)

	release, err := l.Acquire(context.Background(), "listing-1")
	assert.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "listing-1")
	check.True(t, errors.Is(err, context.DeadlineExceeded))
}
