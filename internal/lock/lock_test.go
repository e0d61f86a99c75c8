package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "payout:user:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "payout:user:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.TryLock(ctx, "payout:user:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	require.NoError(t, l.Release(ctx, "payout:user:1", "not-the-token"))
	_, ok, _ = l.TryLock(ctx, "payout:user:1", time.Minute)
	assert.False(t, ok, "release with a foreign token is ignored")

	require.NoError(t, l.Release(ctx, "payout:user:1", token))
	_, ok, _ = l.TryLock(ctx, "payout:user:1", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return now }

	_, ok, _ := l.TryLock(context.Background(), "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Second)
	assert.True(t, ok)
}

func TestTryLockValidates(t *testing.T) {
	l := NewLocalLocker()
	_, _, err := l.TryLock(context.Background(), "", time.Second)
	assert.Error(t, err)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.Error(t, err)
}

func TestAcquireTimesOut(t *testing.T) {
	l := NewLocalLocker()
	_, ok, _ := l.TryLock(context.Background(), "k", time.Minute)
	require.True(t, ok)

	_, err := Acquire(context.Background(), l, "k", time.Minute, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestAcquireSerializes(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := Acquire(context.Background(), l, "payout:user:7", time.Minute, 5*time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}
