package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/pkg/redis"
)

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "empty url", url: "", want: redis.ErrEmptyConnectionURL},
		{name: "wrong scheme", url: "http://localhost:6379", want: redis.ErrFailedToParseURL},
		{name: "bad db index", url: "redis://localhost:6379/notanumber", want: redis.ErrFailedToParseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := redis.Open(ctx, redis.Config{URL: tt.url})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpen_Unreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := redis.Open(ctx, redis.Config{
		URL:           "redis://127.0.0.1:1/0",
		RetryAttempts: 1,
		DialTimeout:   100 * time.Millisecond,
	})
	require.ErrorIs(t, err, redis.ErrConnectionFailed)
}

func TestConfig_Enabled(t *testing.T) {
	t.Parallel()

	require.False(t, redis.Config{}.Enabled())
	require.True(t, redis.Config{URL: "redis://localhost:6379"}.Enabled())
}
