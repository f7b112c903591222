package cache_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/cache"
)

type snapshot struct {
	Total string `json:"total"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := cache.New(client, time.Minute)
	require.NoError(t, c.Set(ctx, "k", snapshot{Total: "120.00"}))

	var got snapshot
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "120.00", got.Total)

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestNilClientMisses(t *testing.T) {
	c := cache.New(nil, time.Minute)
	var got snapshot
	hit, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Set(context.Background(), "k", got))
}

func TestKeyScopedByBranch(t *testing.T) {
	require.Equal(t, "filial:f1:report:seller:s1", cache.BranchKey("f1", "report", "seller", "s1"))
	require.Equal(t, "report:seller:s1", cache.BranchKey("", "report", "seller", "s1"))
}

func TestDeleteMatching(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := cache.New(client, time.Minute)
	for i := 0; i < 450; i++ {
		require.NoError(t, c.Set(ctx, cache.BranchKey("f1", "rpt", "seller", strconv.Itoa(i)), snapshot{}))
	}
	require.NoError(t, c.Set(ctx, cache.BranchKey("f1", "commission", "config"), snapshot{}))
	require.NoError(t, c.Set(ctx, cache.BranchKey("f2", "rpt", "seller", "1"), snapshot{}))

	n, err := c.DeleteMatching(ctx, cache.BranchKey("f1", "rpt", "*"))
	require.NoError(t, err)
	require.Equal(t, 450, n)
	require.True(t, mr.Exists("filial:f1:commission:config"))
	require.True(t, mr.Exists("filial:f2:rpt:seller:1"))

	var nilCache *cache.JSON
	n, err = nilCache.DeleteMatching(ctx, "*")
	require.NoError(t, err)
	require.Zero(t, n)
}
