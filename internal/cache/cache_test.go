package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client), srv
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGetOrSetLoadsOnMiss(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		return payload{Name: "eur", Count: 2}, nil
	}

	var got payload
	require.NoError(t, c.GetOrSet(ctx, "k", time.Minute, &got, loader))
	require.Equal(t, payload{Name: "eur", Count: 2}, got)
	require.Equal(t, 1, calls)

	// Second read is served from the cache.
	var again payload
	require.NoError(t, c.GetOrSet(ctx, "k", time.Minute, &again, loader))
	require.Equal(t, got, again)
	require.Equal(t, 1, calls)
}

func TestGetOrSetPropagatesLoaderError(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("db down")

	var got payload
	err := c.GetOrSet(context.Background(), "k", time.Minute, &got, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestGetOrSetRewritesCorruptEntry(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, srv.Set("k", "{not json"))

	var got payload
	err := c.GetOrSet(ctx, "k", time.Minute, &got, func(ctx context.Context) (any, error) {
		return payload{Name: "fixed"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "fixed", got.Name)
}

func TestGetOrSetExpires(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		return payload{Count: calls}, nil
	}

	var got payload
	require.NoError(t, c.GetOrSet(ctx, "k", time.Second, &got, loader))
	srv.FastForward(2 * time.Second)
	require.NoError(t, c.GetOrSet(ctx, "k", time.Second, &got, loader))
	require.Equal(t, 2, calls)
}

func TestDeleteAndInvalidatePattern(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, srv.Set(OrderKey("a"), "1"))
	require.NoError(t, srv.Set(OrdersByUserKey("u1"), "1"))
	require.NoError(t, srv.Set(OrdersByUserKey("u2"), "1"))
	require.NoError(t, srv.Set(WalletKey("u1", "USD"), "1"))

	require.NoError(t, c.Delete(ctx, OrderKey("a"), "missing-key"))
	require.False(t, srv.Exists(OrderKey("a")))

	require.NoError(t, c.InvalidatePattern(ctx, "orders:user:"))
	require.False(t, srv.Exists(OrdersByUserKey("u1")))
	require.False(t, srv.Exists(OrdersByUserKey("u2")))
	require.True(t, srv.Exists(WalletKey("u1", "USD")))
}
