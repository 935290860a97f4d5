package cache

import (
	"testing"
	"time"

	"github.com/arborcal/calagg/internal/model"
)

func mkEvents(sourceID string, ids ...string) []*model.NormalizedEvent {
	var out []*model.NormalizedEvent
	for _, id := range ids {
		out = append(out, &model.NormalizedEvent{ID: id, SourceID: sourceID})
	}
	return out
}

func TestTierGetSetRoundTrip(t *testing.T) {
	tier := NewTier(10, nil)
	fp := model.QueryFingerprint("fp1")
	events := mkEvents("s1", "a", "b")

	tier.Set(fp, events, time.Minute)
	got, ok := tier.Get(fp)
	if !ok || len(got) != 2 {
		t.Fatalf("expected hit with 2 events, got ok=%v len=%d", ok, len(got))
	}
}

func TestTierExpiresLazily(t *testing.T) {
	tier := NewTier(10, nil)
	fp := model.QueryFingerprint("fp1")
	tier.Set(fp, mkEvents("s1", "a"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := tier.Get(fp)
	if ok {
		t.Fatalf("expected expired entry to miss on access")
	}
}

func TestTierEvictsLRUBeyondCapacity(t *testing.T) {
	var evicted []model.QueryFingerprint
	tier := NewTier(2, func(fp model.QueryFingerprint) { evicted = append(evicted, fp) })

	tier.Set("fp1", mkEvents("s1", "a"), time.Minute)
	tier.Set("fp2", mkEvents("s1", "b"), time.Minute)
	tier.Set("fp3", mkEvents("s1", "c"), time.Minute)

	if tier.Len() != 2 {
		t.Fatalf("expected capacity to cap entry count at 2, got %d", tier.Len())
	}
	if len(evicted) != 1 || evicted[0] != "fp1" {
		t.Fatalf("expected fp1 (least recently used) evicted first, got %v", evicted)
	}
}

func TestTierAccessPromotesMRU(t *testing.T) {
	var evicted []model.QueryFingerprint
	tier := NewTier(2, func(fp model.QueryFingerprint) { evicted = append(evicted, fp) })

	tier.Set("fp1", mkEvents("s1", "a"), time.Minute)
	tier.Set("fp2", mkEvents("s1", "b"), time.Minute)
	tier.Get("fp1") // touch fp1, making fp2 the LRU victim
	tier.Set("fp3", mkEvents("s1", "c"), time.Minute)

	if len(evicted) != 1 || evicted[0] != "fp2" {
		t.Fatalf("expected fp2 evicted after fp1 was touched, got %v", evicted)
	}
}

func TestTierInvalidateSourceDropsMatchingEntries(t *testing.T) {
	tier := NewTier(10, nil)
	tier.Set("fp1", mkEvents("s1", "a"), time.Minute)
	tier.Set("fp2", mkEvents("s2", "b"), time.Minute)

	tier.InvalidateSource("s1")

	if _, ok := tier.Get("fp1"); ok {
		t.Fatalf("expected fp1 to be invalidated")
	}
	if _, ok := tier.Get("fp2"); !ok {
		t.Fatalf("expected fp2 to survive invalidation of a different source")
	}
}

func TestTierSweepRemovesExpiredEntries(t *testing.T) {
	tier := NewTier(10, nil)
	tier.Set("fp1", mkEvents("s1", "a"), time.Nanosecond)
	tier.Set("fp2", mkEvents("s1", "b"), time.Hour)

	tier.Sweep(time.Now().Add(time.Millisecond))

	if tier.Len() != 1 {
		t.Fatalf("expected sweep to remove 1 expired entry, got len=%d", tier.Len())
	}
	if _, ok := tier.Get("fp2"); !ok {
		t.Fatalf("expected fp2 to survive sweep")
	}
}
