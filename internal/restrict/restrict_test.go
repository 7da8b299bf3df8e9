package restrict

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, nil)

	banned, err := store.IsRestricted(ctx, 5)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, store.Restrict(ctx, 5))
	require.NoError(t, store.Restrict(ctx, 5))

	banned, err = store.IsRestricted(ctx, 5)
	require.NoError(t, err)
	assert.True(t, banned)

	members, err := mr.Members(bannedSetKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, members)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Restrict(ctx, 1))
	banned, _ := store.IsRestricted(ctx, 1)
	assert.True(t, banned)
	banned, _ = store.IsRestricted(ctx, 2)
	assert.False(t, banned)
}
