// Package cache implements the Memory Tier (C4): a bounded mapping from
// QueryFingerprint to a result set, with an LRU overlay and per-entry TTL.
// It is a pure function of the events handed to it — all durability lives
// in the persistent index (internal/storage); this tier is never a
// suspension point and must not perform I/O while its lock is held.
//
// This supersedes the generic key/value TTL map this package used to hold,
// which capped size but had no real recency-based eviction policy —
// hashicorp/golang-lru/v2 is the concrete LRU underneath the mutex-guarded
// map this package now holds.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arborcal/calagg/internal/model"
)

type entry struct {
	events     []*model.NormalizedEvent
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// Tier is the Memory Tier. Get, Set and Len are O(1) amortized under its
// mutex; InvalidateSource and Sweep scan every entry, so they are O(n) in
// the entry count. No operation performs I/O.
type Tier struct {
	mu      sync.Mutex
	entries *lru.Cache[model.QueryFingerprint, entry]
	onEvict func(model.QueryFingerprint)
}

// NewTier creates a Memory Tier bounded to maxEntries. onEvict, if
// non-nil, is invoked (while the tier's own lock is held) whenever an entry is
// dropped for any reason — LRU pressure, TTL expiry, or source
// invalidation — so the owning EventCache can maintain its eviction
// counter without this package reaching into EventCache's stats itself.
func NewTier(maxEntries int, onEvict func(model.QueryFingerprint)) *Tier {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	t := &Tier{onEvict: onEvict}
	c, _ := lru.NewWithEvict[model.QueryFingerprint, entry](maxEntries, func(key model.QueryFingerprint, _ entry) {
		if t.onEvict != nil {
			t.onEvict(key)
		}
	})
	t.entries = c
	return t
}

// Get returns the cached events for fingerprint, or (nil, false) on a miss
// or an expired entry. A hit moves the entry to the MRU position.
func (t *Tier) Get(fp model.QueryFingerprint) ([]*model.NormalizedEvent, bool) {
	t.mu.Lock()
	e, ok := t.entries.Get(fp)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	if e.expired(time.Now()) {
		t.entries.Remove(fp)
		t.mu.Unlock()
		return nil, false
	}
	t.mu.Unlock()
	return e.events, true
}

// Set inserts or replaces the entry for fingerprint with the given TTL.
func (t *Tier) Set(fp model.QueryFingerprint, events []*model.NormalizedEvent, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Add(fp, entry{events: events, insertedAt: time.Now(), ttl: ttl})
}

// InvalidateSource drops every entry that contains any event with the
// given sourceID.
func (t *Tier) InvalidateSource(sourceID string) {
	t.mu.Lock()
	keys := t.entries.Keys()
	var toRemove []model.QueryFingerprint
	for _, k := range keys {
		e, ok := t.entries.Peek(k)
		if !ok {
			continue
		}
		for _, ev := range e.events {
			if ev.SourceID == sourceID {
				toRemove = append(toRemove, k)
				break
			}
		}
	}
	for _, k := range toRemove {
		t.entries.Remove(k)
	}
	t.mu.Unlock()
}

// Sweep proactively drops entries whose TTL has elapsed. Called on a timer
// by the EventCache's background cleanup task; lazy expiration on Get
// covers the common case, this covers cold entries nobody reads again.
func (t *Tier) Sweep(now time.Time) {
	t.mu.Lock()
	keys := t.entries.Keys()
	var expired []model.QueryFingerprint
	for _, k := range keys {
		e, ok := t.entries.Peek(k)
		if !ok {
			continue
		}
		if e.expired(now) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		t.entries.Remove(k)
	}
	t.mu.Unlock()
}

// Len reports the current entry count, used for stats/testing.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Len()
}
