package cache

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// These tests need a live server; set REDIS_ADDR to run them.
func newTestStore(t *testing.T) *RedisMuteStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := ConnectRedis(context.Background(), addr, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
	})
	return NewRedisMuteStore(rdb, prefix, logger)
}

func TestRedisMuteStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	muted, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, muted)
}

func TestRedisMuteStore_SaveReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "alice", []string{"eve", "bob"}))
	muted, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "eve"}, muted)

	require.NoError(t, store.Save(ctx, "alice", []string{"carol"}))
	muted, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"carol"}, muted)

	require.NoError(t, store.Save(ctx, "alice", nil))
	muted, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, muted)
}
