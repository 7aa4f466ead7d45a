package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission-gateway/middleware/ratelimit/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisStore_CheckAndConsume(t *testing.T) {
	tt := []struct {
		desc          string
		runs          int
		advance       time.Duration
		wantAllowed   bool
		wantRemaining int
		wantResetIn   time.Duration
	}{
		{desc: "admits under the limit", runs: 2, wantAllowed: true, wantRemaining: 1, wantResetIn: time.Minute},
		{desc: "admits the last request of the window", runs: 3, wantAllowed: true, wantRemaining: 0, wantResetIn: time.Minute},
		{desc: "rejects over the limit", runs: 4, wantAllowed: false, wantRemaining: 0, wantResetIn: time.Minute},
		{desc: "keeps the original reset time", runs: 2, advance: 10 * time.Second, wantAllowed: true, wantRemaining: 1, wantResetIn: 50 * time.Second},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			server, client := newRedis(t)
			store := NewRedisStore(client)
			ctx := context.Background()
			now := t0

			var dec domain.Decision
			var err error
			for i := 0; i < ts.runs; i++ {
				if i > 0 && ts.advance > 0 {
					server.FastForward(ts.advance)
					now = now.Add(ts.advance)
				}
				dec, err = store.CheckAndConsume(ctx, "1.2.3.4", threePerMin, now)
				require.NoError(t, err)
			}

			assert.Equal(t, ts.wantAllowed, dec.Allowed)
			assert.Equal(t, ts.wantRemaining, dec.Remaining)
			assert.Equal(t, 3, dec.Limit)
			assert.Equal(t, now.Add(ts.wantResetIn), dec.ResetAt)
		})
	}
}

func TestRedisStore_NewWindowAfterExpiry(t *testing.T) {
	server, client := newRedis(t)
	store := NewRedisStore(client, WithKeyPrefix("rl:"))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.CheckAndConsume(ctx, "5.6.7.8", threePerMin, t0)
		require.NoError(t, err)
	}
	assert.Equal(t, "3", mustGet(t, server, "rl:5.6.7.8"))

	server.FastForward(60001 * time.Millisecond)
	dec, err := store.CheckAndConsume(ctx, "5.6.7.8", threePerMin, t0.Add(60001*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, dec.Remaining)
}

func TestRedisStore_IdentifiersAreIndependent(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CheckAndConsume(ctx, "A", threePerMin, t0)
		require.NoError(t, err)
	}
	dec, err := store.CheckAndConsume(ctx, "B", threePerMin, t0)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, dec.Remaining)
}

func TestRedisStore_ReturnsErrorWhenUnavailable(t *testing.T) {
	server, client := newRedis(t)
	store := NewRedisStore(client)
	server.Close()

	_, err := store.CheckAndConsume(context.Background(), "k", threePerMin, t0)
	require.Error(t, err)
}

func TestRedisStore_SweepIsNoop(t *testing.T) {
	_, client := newRedis(t)
	removed, err := NewRedisStore(client).Sweep(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func mustGet(t *testing.T, server *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := server.Get(key)
	require.NoError(t, err)
	return v
}
