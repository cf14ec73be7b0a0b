package lookup

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/metrics"
)

const (
	// DefaultResidentVersions bounds the number of dictionaries kept in memory.
	DefaultResidentVersions = 2
	// DefaultActiveVersionTTL is how long the active version pointer is trusted.
	DefaultActiveVersionTTL = 30 * time.Second

	activeVersionKey = "active"
)

// DictionaryCache keeps the dictionaries of recently used versions in memory. A
// dictionary is populated once from the MetadataStore and never changes afterwards.
// Only versions marked ready are loaded.
type DictionaryCache struct {
	store    domain.MetadataStore
	versions domain.VersionStore
	cache    *lru.Cache[string, *Dictionary]
	loads    singleflight.Group
	logger   *logrus.Logger
}

// NewDictionaryCache creates a cache holding at most resident dictionaries.
func NewDictionaryCache(store domain.MetadataStore, versions domain.VersionStore, resident int, logger *logrus.Logger) (*DictionaryCache, error) {
	if resident <= 0 {
		resident = DefaultResidentVersions
	}
	cache, err := lru.New[string, *Dictionary](resident)
	if err != nil {
		return nil, fmt.Errorf("failed to create dictionary cache: %w", err)
	}
	return &DictionaryCache{
		store:    store,
		versions: versions,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Get returns the dictionary of a version, loading it on first use.
func (c *DictionaryCache) Get(ctx context.Context, version string) (*Dictionary, error) {
	if d, ok := c.cache.Get(version); ok {
		return d, nil
	}

	v, err, _ := c.loads.Do(version, func() (interface{}, error) {
		if d, ok := c.cache.Get(version); ok {
			return d, nil
		}
		ready, err := c.versions.IsReady(ctx, version)
		if err != nil {
			return nil, fmt.Errorf("checking version %s: %w", version, err)
		}
		if !ready {
			return nil, fmt.Errorf("version %s: %w", version, domain.ErrVersionNotReady)
		}

		start := time.Now()
		entries, err := c.store.FetchAll(ctx, version)
		if err != nil {
			return nil, fmt.Errorf("loading dictionary %s: %w", version, err)
		}
		d := NewDictionary(version, entries)
		c.cache.Add(version, d)

		c.logger.WithFields(logrus.Fields{
			"version":     version,
			"entries":     d.Len(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Loaded metadata dictionary")
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dictionary), nil
}

// Evict drops a resident dictionary so the next Get reloads it. Lookups already pinned
// to the old dictionary are unaffected.
func (c *DictionaryCache) Evict(version string) {
	c.cache.Remove(version)
}

// ActiveVersionAccessor caches the active version pointer for a short time. Swapping
// the pointer does not touch the dictionary cache, so searches that already pinned a
// version keep using it.
type ActiveVersionAccessor struct {
	versions domain.VersionStore
	cache    *expirable.LRU[string, string]
	logger   *logrus.Logger
	metrics  *metrics.Collectors
}

// NewActiveVersionAccessor creates an accessor trusting the cached pointer for ttl.
func NewActiveVersionAccessor(versions domain.VersionStore, ttl time.Duration, logger *logrus.Logger, m *metrics.Collectors) *ActiveVersionAccessor {
	if ttl <= 0 {
		ttl = DefaultActiveVersionTTL
	}
	return &ActiveVersionAccessor{
		versions: versions,
		cache:    expirable.NewLRU[string, string](1, nil, ttl),
		logger:   logger,
		metrics:  m,
	}
}

// Get returns the active version.
func (a *ActiveVersionAccessor) Get(ctx context.Context) (string, error) {
	if v, ok := a.cache.Get(activeVersionKey); ok {
		return v, nil
	}
	v, err := a.versions.ActiveVersion(ctx)
	if err != nil {
		return "", err
	}
	a.cache.Add(activeVersionKey, v)
	return v, nil
}

// Activate makes a ready version active and swaps the cached pointer.
func (a *ActiveVersionAccessor) Activate(ctx context.Context, version string) error {
	previous, _ := a.cache.Peek(activeVersionKey)
	if err := a.versions.Activate(ctx, version); err != nil {
		return fmt.Errorf("failed to activate version %s: %w", version, err)
	}
	a.cache.Add(activeVersionKey, version)
	a.metrics.ObserveActivation()

	a.logger.WithFields(logrus.Fields{
		"version":  version,
		"previous": previous,
	}).Info("Activated nomenclature version")
	return nil
}
