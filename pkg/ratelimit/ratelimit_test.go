package ratelimit_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/pkg/ratelimit"
)

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 2})
	require.NotNil(t, l)

	assert.True(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.1", now))
	assert.False(t, l.Allow("10.0.0.1", now))
	assert.Greater(t, l.RetryAfter("10.0.0.1", now), time.Duration(0))

	// independent bucket per key
	assert.True(t, l.Allow("10.0.0.2", now))

	// one token refills after a second
	assert.True(t, l.Allow("10.0.0.1", now.Add(time.Second)))
}

func TestLimiter_EmptyKey(t *testing.T) {
	t.Parallel()

	l := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	now := time.Now()
	for range 5 {
		assert.True(t, l.Allow("  ", now))
	}
	assert.Zero(t, l.Len())
}

func TestLimiter_Disabled(t *testing.T) {
	t.Parallel()

	l := ratelimit.New(ratelimit.Config{})
	require.Nil(t, l)
	assert.True(t, l.Allow("x", time.Now()))
	assert.Zero(t, l.RetryAfter("x", time.Now()))
	assert.Zero(t, l.Len())
}

func TestLimiter_EvictsIdleKeys(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := ratelimit.New(ratelimit.Config{RPS: 100, Burst: 100, IdleTTL: time.Minute})

	for i := range 511 {
		l.Allow(fmt.Sprintf("old-%d", i), start)
	}
	require.Equal(t, 511, l.Len())

	l.Allow("fresh", start.Add(2*time.Minute))
	assert.Equal(t, 1, l.Len())
}
