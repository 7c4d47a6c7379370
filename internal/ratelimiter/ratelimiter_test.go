package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name              string
		requestsPerSecond uint
		burst             uint
		wantNil           bool
		wantTokens        float64
	}{
		{name: "explicit burst", requestsPerSecond: 100, burst: 200, wantTokens: 200},
		{name: "burst defaults to rate", requestsPerSecond: 10, burst: 0, wantTokens: 10},
		{name: "zero rate disables limiting", requestsPerSecond: 0, burst: 5, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.requestsPerSecond, tt.burst)
			if tt.wantNil {
				assert.Nil(t, limiter)
				return
			}
			require.NotNil(t, limiter)
			assert.InDelta(t, tt.wantTokens, limiter.Tokens(), 1)
		})
	}
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "event %d should be admitted within the burst", i)
	}
	assert.False(t, limiter.Allow(), "bucket should be empty after the burst")

	// 10/s refills one token every 100ms.
	time.Sleep(150 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestWait(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWait_ContextCancelled(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestNilLimiter(t *testing.T) {
	var limiter *RateLimiter

	for i := 0; i < 1000; i++ {
		require.True(t, limiter.Allow())
	}
	assert.NoError(t, limiter.Wait(context.Background()))
	assert.Zero(t, limiter.Tokens())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.Canceled)
}

func BenchmarkAllow(b *testing.B) {
	limiter := New(1_000_000, 1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}
