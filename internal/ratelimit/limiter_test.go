package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterBurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(Policy{Rate: 1, Burst: 2})
	l.now = func() time.Time { return now }
	key := Key("payout", "10")

	for i := 0; i < 2; i++ {
		res, err := l.Allow(context.Background(), key)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	// Other subjects have their own bucket.
	res, err = l.Allow(context.Background(), Key("payout", "11"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	now = now.Add(time.Second)
	res, err = l.Allow(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPolicyValidation(t *testing.T) {
	_, err := NewLocalLimiter(Policy{Rate: 1, Burst: 1}).Allow(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyKey)

	_, err = NewLocalLimiter(Policy{Rate: 0, Burst: 1}).Allow(context.Background(), "k")
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestBucketHelpers(t *testing.T) {
	assert.Equal(t, 4*time.Second, bucketTTL(Policy{Rate: 5, Burst: 10}))
	assert.Equal(t, time.Second, bucketTTL(Policy{Rate: 100, Burst: 1}))
	assert.Equal(t, 500*time.Millisecond, refillDelay(0.5, 1))
	assert.Equal(t, time.Duration(0), refillDelay(1.5, 1))
	assert.Equal(t, 0.25, castToFloat("0.25"))
	assert.Equal(t, int64(3), castToInt(float64(3)))
}

func TestUnlimited(t *testing.T) {
	res, err := Unlimited{}.Allow(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
