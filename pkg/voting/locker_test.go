package voting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseLocker checks that holders of one key never overlap while other
// keys are not blocked.
func exerciseLocker(t *testing.T, l Locker) {
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "same")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err, "different keys do not block each other")
	unlockA()
	unlockB()

	held, err := l.Lock(ctx, "held")
	require.NoError(t, err)
	defer held()

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "held")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()
	exerciseLocker(t, km)
	assert.Equal(t, 0, km.size(), "idle keys are dropped")
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()
	assert.Equal(t, 0, km.size())

	again, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	_, client := newTestRedis(t)
	exerciseLocker(t, NewRedisLocker(client, time.Second))
}

func TestRedisLockerReleasesOnlyOwnLock(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists(l.Prefix+"k"))

	// the lock expired and someone else took it
	mr.Set(l.Prefix+"k", "someone-else")
	unlock()
	got, err := mr.Get(l.Prefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, 100*time.Millisecond)
	ctx := context.Background()

	_, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(200 * time.Millisecond)

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, err := NewRedisLocker(client, time.Second).Lock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
