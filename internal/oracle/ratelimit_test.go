package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstUpToCapacity(t *testing.T) {
	rl := newRateLimiter(10)
	defer rl.Close()

	for i := 0; i < 10; i++ {
		assert.True(t, rl.tryAcquire(), "acquire %d should succeed", i)
	}
	assert.False(t, rl.tryAcquire(), "bucket should be empty")
}

func TestRateLimiterWaitRespectsContext(t *testing.T) {
	rl := newRateLimiter(1)
	defer rl.Close()

	require.True(t, rl.tryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.wait(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiterWaitSucceedsWhenTokenAvailable(t *testing.T) {
	rl := newRateLimiter(5)
	defer rl.Close()

	require.NoError(t, rl.wait(context.Background()))
}

func TestRateLimiterDefaultsOnInvalidRate(t *testing.T) {
	rl := newRateLimiter(0)
	defer rl.Close()

	assert.Equal(t, 60, rl.capacity)
}
