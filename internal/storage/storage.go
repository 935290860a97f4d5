// Package storage defines the Persistent Event Index contract: a durable
// relational store of normalized events with query support, plus the
// query-result cache that backs the persistent tier of the event cache.
package storage

import (
	"context"
	"time"

	"github.com/arborcal/calagg/internal/model"
)

// Store is the Persistent Event Index (C3). Implementations must make
// upsertEvents atomic and must never return a partially-written snapshot
// to a concurrent reader.
type Store interface {
	Close() error

	// UpsertEvents writes events in a single transaction. An incoming
	// event overwrites the stored row only when its LastModified is at
	// least as recent as the existing row's; otherwise the existing row
	// is left untouched (no downgrade).
	UpsertEvents(ctx context.Context, events []*model.NormalizedEvent) error

	// FindByQuery applies every predicate in q and returns the matching
	// rows. An empty QueryDescriptor returns every row.
	FindByQuery(ctx context.Context, q model.QueryDescriptor) ([]*model.NormalizedEvent, error)

	// FindByID performs a global by-ID lookup, independent of source.
	FindByID(ctx context.Context, eventID string) (*model.NormalizedEvent, error)

	// DeleteBySource removes every event row owned by sourceID and
	// invalidates every query-cache row whose result set referenced it.
	DeleteBySource(ctx context.Context, sourceID string) error

	// CleanupExpired removes stale query-cache rows and event rows that
	// have outlived persistentTTL since their source's last full refresh.
	CleanupExpired(ctx context.Context, now time.Time, persistentTTL time.Duration) error

	// GetQueryCache returns the cached result-id list for fingerprint, if
	// present and unexpired.
	GetQueryCache(ctx context.Context, fp model.QueryFingerprint) ([]string, bool, error)

	// PutQueryCache records the fingerprint → result-id mapping with the
	// given TTL, superseding any prior entry for the same fingerprint.
	PutQueryCache(ctx context.Context, fp model.QueryFingerprint, eventIDs []string, ttl time.Duration) error

	// EventsByIDs resolves a result-id list back into full events, used
	// to materialize a persistent query-cache hit.
	EventsByIDs(ctx context.Context, ids []string) ([]*model.NormalizedEvent, error)

	// TouchSourceRefresh records that sourceID just completed a full
	// refresh at ts, the reference point cleanupExpired uses to decide
	// whether an event row has gone stale.
	TouchSourceRefresh(ctx context.Context, sourceID string, ts time.Time) error
}
