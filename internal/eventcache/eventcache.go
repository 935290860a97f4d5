// Package eventcache implements the EventCache facade (C5): the only
// component that touches both the in-memory tier and the persistent
// index, and the sole owner of CacheStats.
package eventcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arborcal/calagg/internal/cache"
	"github.com/arborcal/calagg/internal/model"
	"github.com/arborcal/calagg/internal/storage"
)

// Cache fronts the memory tier (C4) and the persistent index (C3). Lookup
// order on a read is memory, then the persistent query cache, then a full
// persistent-index query; a persistent-tier hit is promoted into memory
// so the next read of the same fingerprint is served hot.
type Cache struct {
	mu    sync.Mutex
	tier  *cache.Tier
	store storage.Store

	memoryTTL     time.Duration
	persistentTTL time.Duration

	stats         stats
	sweepStop     chan struct{}
	sweepStopOnce sync.Once
}

type stats struct {
	memoryHits       int64
	memoryMisses     int64
	persistentHits   int64
	persistentMisses int64
	evictions        int64
}

// New builds a Cache with maxMemoryEvents capacity in its memory tier and
// the given TTLs, and starts a background sweep every cleanupInterval.
func New(store storage.Store, maxMemoryEvents int, memoryTTL, persistentTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		store:         store,
		memoryTTL:     memoryTTL,
		persistentTTL: persistentTTL,
		sweepStop:     make(chan struct{}),
	}
	c.tier = cache.NewTier(maxMemoryEvents, func(model.QueryFingerprint) {
		atomic.AddInt64(&c.stats.evictions, 1)
	})
	if cleanupInterval > 0 {
		go c.sweepLoop(cleanupInterval)
	}
	return c
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tier.Sweep(time.Now())
			_ = c.store.CleanupExpired(context.Background(), time.Now(), c.persistentTTL)
		case <-c.sweepStop:
			return
		}
	}
}

// GetEvents returns the cached result for q, or (nil, false) on a full
// miss across both tiers.
func (c *Cache) GetEvents(ctx context.Context, q model.QueryDescriptor) ([]*model.NormalizedEvent, bool, error) {
	fp := model.Fingerprint(q)

	if events, ok := c.tier.Get(fp); ok {
		atomic.AddInt64(&c.stats.memoryHits, 1)
		return events, true, nil
	}
	atomic.AddInt64(&c.stats.memoryMisses, 1)

	if ids, ok, err := c.store.GetQueryCache(ctx, fp); err != nil {
		return nil, false, err
	} else if ok {
		events, err := c.store.EventsByIDs(ctx, ids)
		if err != nil {
			return nil, false, err
		}
		atomic.AddInt64(&c.stats.persistentHits, 1)
		c.tier.Set(fp, events, c.memoryTTL)
		return events, true, nil
	}

	events, err := c.store.FindByQuery(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if len(events) == 0 {
		atomic.AddInt64(&c.stats.persistentMisses, 1)
		return nil, false, nil
	}

	atomic.AddInt64(&c.stats.persistentHits, 1)
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := c.store.PutQueryCache(ctx, fp, ids, c.persistentTTL); err != nil {
		return nil, false, err
	}
	c.tier.Set(fp, events, c.memoryTTL)
	return events, true, nil
}

// SetEvents writes events through to the persistent index, records the
// fingerprint's result-id list, and populates the memory tier. It does
// not return the events; callers already have them.
func (c *Cache) SetEvents(ctx context.Context, q model.QueryDescriptor, events []*model.NormalizedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.UpsertEvents(ctx, events); err != nil {
		return err
	}
	fp := model.Fingerprint(q)
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := c.store.PutQueryCache(ctx, fp, ids, c.persistentTTL); err != nil {
		return err
	}
	c.tier.Set(fp, events, c.memoryTTL)
	return nil
}

// InvalidateSource drops every memory entry referencing sourceID and
// removes it from the persistent index. Once this returns, sourceID
// cannot reappear in any query result until SetEvents is called again.
func (c *Cache) InvalidateSource(ctx context.Context, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tier.InvalidateSource(sourceID)
	return c.store.DeleteBySource(ctx, sourceID)
}

// FindByID is a passthrough to the persistent index's global by-ID
// lookup, used by getEventDetails before it falls back to a live fetch.
func (c *Cache) FindByID(ctx context.Context, eventID string) (*model.NormalizedEvent, error) {
	return c.store.FindByID(ctx, eventID)
}

// TouchSourceRefresh records that sourceID was successfully fetched live
// at ts, so CleanupExpired can later tell a source that's gone stale
// (nobody has refreshed it within persistentTTL) from one still current.
func (c *Cache) TouchSourceRefresh(ctx context.Context, sourceID string, ts time.Time) error {
	return c.store.TouchSourceRefresh(ctx, sourceID, ts)
}

// GetStats returns a snapshot of the hit/miss/eviction counters.
func (c *Cache) GetStats() model.CacheStats {
	return model.CacheStats{
		MemoryHits:       atomic.LoadInt64(&c.stats.memoryHits),
		MemoryMisses:     atomic.LoadInt64(&c.stats.memoryMisses),
		PersistentHits:   atomic.LoadInt64(&c.stats.persistentHits),
		PersistentMisses: atomic.LoadInt64(&c.stats.persistentMisses),
		TotalEvents:      int64(c.tier.Len()),
		Evictions:        atomic.LoadInt64(&c.stats.evictions),
	}
}

// Close stops the background sweep and releases the persistent index's
// file handles. Safe to call once.
func (c *Cache) Close() error {
	c.sweepStopOnce.Do(func() { close(c.sweepStop) })
	return c.store.Close()
}
