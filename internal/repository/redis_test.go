package repository_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/repository"
)

// countingStore counts reads that reach the backing store.
type countingStore struct {
	*repository.MemoryStore
	fetchAll atomic.Int32
	fetch    atomic.Int32
}

func (c *countingStore) FetchAll(ctx context.Context, version string) ([]domain.MetadataEntry, error) {
	c.fetchAll.Add(1)
	return c.MemoryStore.FetchAll(ctx, version)
}

func (c *countingStore) Fetch(ctx context.Context, version string, locus domain.Locus, method domain.TypingMethod, name string) ([]domain.MetadataEntry, error) {
	c.fetch.Add(1)
	return c.MemoryStore.Fetch(ctx, version, locus, method, name)
}

// redisURL defaults to a scratch database of a local Redis.
func redisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379/15"
}

func newRedisStore(t *testing.T) (*repository.RedisCachedStore, *countingStore, func(string) string) {
	t.Helper()
	client, err := repository.NewRedisClient(context.Background(), domain.CacheConfig{
		RedisURL:    redisURL(),
		PoolSize:    4,
		PoolTimeout: time.Second,
		MaxRetries:  1,
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	backing := &countingStore{MemoryStore: repository.NewMemoryStore()}
	store := repository.NewRedisCachedStore(backing, client, time.Minute, logger)

	// Versions are namespaced per test so parallel runs do not collide.
	prefix := uuid.NewString()
	version := func(v string) string { return prefix + "-" + v }
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, "hla:metadata:"+prefix+"-*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return store, backing, version
}

func TestRedisCachedStore_Contract(t *testing.T) {
	client, err := repository.NewRedisClient(context.Background(), domain.CacheConfig{RedisURL: redisURL()})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()
	client.FlushDB(context.Background())

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	runMetadataStoreContract(t, repository.NewRedisCachedStore(repository.NewMemoryStore(), client, time.Minute, logger))
}

func TestRedisCachedStore_ReadThrough(t *testing.T) {
	store, backing, version := newRedisStore(t)
	ctx := context.Background()
	v := version("3330")

	require.NoError(t, store.Persist(ctx, v, domain.LocusA, []domain.MetadataEntry{
		matchingEntry(domain.LocusA, "01:01:01:01", "01:01P"),
		scoringEntry(domain.LocusA, "01:01:01:01", "01:01:01G", "01:01P"),
	}))
	require.NoError(t, store.Persist(ctx, v, domain.LocusDPB1, []domain.MetadataEntry{
		tceEntry("30:01:01:01", "1"),
	}))

	all, err := store.FetchAll(ctx, v)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int32(1), backing.fetchAll.Load())

	cached, err := store.FetchAll(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, all, cached)
	assert.Equal(t, int32(1), backing.fetchAll.Load(), "second load should come from Redis")

	got, err := store.Fetch(ctx, v, domain.LocusDPB1, domain.Molecular, "30:01:01:01")
	require.NoError(t, err)
	assert.Equal(t, "1", got[0].Tce.TceGroup)
	_, err = store.Fetch(ctx, v, domain.LocusB, domain.Molecular, "07:02:01:01")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, int32(0), backing.fetch.Load())

	// Regenerating a locus invalidates it.
	require.NoError(t, store.Persist(ctx, v, domain.LocusA, []domain.MetadataEntry{
		matchingEntry(domain.LocusA, "02:01:01:01", "02:01P"),
	}))
	all, err = store.FetchAll(ctx, v)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "02:01:01:01", all[0].LookupName)
	assert.Equal(t, int32(2), backing.fetchAll.Load())
}

func TestRedisCachedStore_UnknownVersionIsNotCached(t *testing.T) {
	store, backing, version := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		all, err := store.FetchAll(ctx, version("9999"))
		require.NoError(t, err)
		assert.Empty(t, all)
	}
	assert.Equal(t, int32(2), backing.fetchAll.Load())
}
