package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/domain"
)

// DefaultRedisTTL bounds how long a cached locus survives without being regenerated.
const DefaultRedisTTL = 24 * time.Hour

// NewRedisClient connects to the Redis instance described by the cache settings.
func NewRedisClient(ctx context.Context, config domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisCachedStore is a read-through cache of a MetadataStore shared by every engine
// instance. Each (version, locus) is cached as one JSON document so a dictionary load
// costs a single MGET. Redis failures degrade to the backing store.
type RedisCachedStore struct {
	backing domain.MetadataStore
	redis   *redis.Client
	ttl     time.Duration
	log     *logrus.Logger
}

// NewRedisCachedStore wraps backing with a Redis cache. A non-positive ttl uses DefaultRedisTTL.
func NewRedisCachedStore(backing domain.MetadataStore, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCachedStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCachedStore{
		backing: backing,
		redis:   client,
		ttl:     ttl,
		log:     logger,
	}
}

func locusKey(version string, locus domain.Locus) string {
	return fmt.Sprintf("hla:metadata:%s:%s", version, locus)
}

// Persist writes through to the backing store and drops the cached locus.
func (c *RedisCachedStore) Persist(ctx context.Context, version string, locus domain.Locus, entries []domain.MetadataEntry) error {
	if err := c.backing.Persist(ctx, version, locus, entries); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, locusKey(version, locus)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached %s@%s: %w", locus, version, err)
	}
	return nil
}

// Fetch serves a key from the cached locus when present.
func (c *RedisCachedStore) Fetch(ctx context.Context, version string, locus domain.Locus, method domain.TypingMethod, name string) ([]domain.MetadataEntry, error) {
	entries, ok := c.getLocus(ctx, version, locus)
	if !ok {
		return c.backing.Fetch(ctx, version, locus, method, name)
	}
	var out []domain.MetadataEntry
	for _, e := range entries {
		if e.Method == method && e.LookupName == name {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metadata %s %s*%s@%s: %w", method, locus, name, version, domain.ErrNotFound)
	}
	return out, nil
}

// FetchAll assembles a version from cached loci, loading the whole version from the
// backing store when any locus is missing.
func (c *RedisCachedStore) FetchAll(ctx context.Context, version string) ([]domain.MetadataEntry, error) {
	keys := make([]string, len(domain.AllLoci))
	for i, locus := range domain.AllLoci {
		keys[i] = locusKey(version, locus)
	}

	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err == nil {
		var out []domain.MetadataEntry
		complete := true
		for i, val := range vals {
			entries, ok := c.decodeLocus(ctx, keys[i], val)
			if !ok {
				complete = false
				break
			}
			out = append(out, entries...)
		}
		if complete {
			return out, nil
		}
	} else {
		c.log.WithError(err).WithField("version", version).Warn("Redis metadata read failed, using backing store")
	}

	all, err := c.backing.FetchAll(ctx, version)
	if err != nil {
		return nil, err
	}
	if len(all) > 0 {
		c.populate(ctx, version, all)
	}
	return all, nil
}

func (c *RedisCachedStore) getLocus(ctx context.Context, version string, locus domain.Locus) ([]domain.MetadataEntry, bool) {
	key := locusKey(version, locus)
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Redis metadata read failed, using backing store")
		return nil, false
	}
	return c.decodeLocus(ctx, key, val)
}

// decodeLocus unpacks a cached locus document. Corrupt documents are removed.
func (c *RedisCachedStore) decodeLocus(ctx context.Context, key string, val interface{}) ([]domain.MetadataEntry, bool) {
	var raw []byte
	switch v := val.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, false
	}

	var entries []domain.MetadataEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.redis.Del(ctx, key)
		return nil, false
	}
	return entries, true
}

// populate caches every locus of a version, including empty ones.
func (c *RedisCachedStore) populate(ctx context.Context, version string, all []domain.MetadataEntry) {
	byLocus := make(map[domain.Locus][]domain.MetadataEntry, len(domain.AllLoci))
	for _, e := range all {
		byLocus[e.Locus] = append(byLocus[e.Locus], e)
	}

	pipe := c.redis.Pipeline()
	for _, locus := range domain.AllLoci {
		entries := byLocus[locus]
		if entries == nil {
			entries = []domain.MetadataEntry{}
		}
		data, err := json.Marshal(entries)
		if err != nil {
			c.log.WithError(err).Warn("Skipping metadata cache population")
			return
		}
		pipe.Set(ctx, locusKey(version, locus), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).WithField("version", version).Warn("Failed to cache metadata in Redis")
		return
	}
	c.log.WithFields(logrus.Fields{
		"version": version,
		"entries": len(all),
	}).Debug("Cached metadata version in Redis")
}
