// Package model holds the data types shared by every component of the
// aggregation engine and the event cache: sources, normalized events,
// queries, and the small result/stat records components exchange.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

// SourceType is the closed set of adapter kinds the registry can dispatch to.
type SourceType string

const (
	SourceTypeICal   SourceType = "ical"
	SourceTypeCalDAV SourceType = "caldav"
)

// SourceStatus is the lifecycle state of a CalendarSource.
type SourceStatus string

const (
	SourceActive   SourceStatus = "active"
	SourceError    SourceStatus = "error"
	SourceDisabled SourceStatus = "disabled"
)

// CalendarSource is a configured remote calendar feed.
type CalendarSource struct {
	ID              string
	Name            string
	Type            SourceType
	URL             string
	Enabled         bool
	RefreshInterval time.Duration
	Status          SourceStatus
	Credentials     map[string]string
}

// Location is an optional place attached to an event.
type Location struct {
	Name    string
	Address string
}

// Organizer is the optional event owner.
type Organizer struct {
	Name  string
	Email string
}

// RecurrenceRule is carried opaquely by the core; expansion is not a core
// responsibility (see pkg/ical for the RRULE validation that IS a core
// concern: confirming the string is well-formed when the feed is parsed).
type RecurrenceRule struct {
	RRule   string
	RDates  []time.Time
	ExDates []time.Time
}

// NormalizedEvent is the canonical event shape every adapter maps into.
type NormalizedEvent struct {
	ID           string
	SourceID     string
	Title        string
	Description  string
	StartDate    time.Time
	EndDate      time.Time
	Location     *Location
	Organizer    *Organizer
	Categories   []string
	URL          string
	LastModified time.Time
	Recurrence   *RecurrenceRule
}

// RawEvent is adapter-specific and opaque to the core.
type RawEvent struct {
	SourceID string
	ID       string
	Payload  any
}

// DateRange bounds a query or fetch by instant.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// QueryDescriptor is the AND-combined filter passed to EventCache.getEvents.
// An empty descriptor matches all cached events.
type QueryDescriptor struct {
	SourceIDs  []string
	DateRange  *DateRange
	Keywords   []string
	Categories []string
}

// QueryFingerprint is the deterministic canonical cache key derived from a
// QueryDescriptor: sort SourceIDs lexicographically, normalize DateRange to
// ISO instants, sort Keywords and Categories. Two descriptors with the same
// fingerprint are interchangeable cache keys.
type QueryFingerprint string

func Fingerprint(q QueryDescriptor) QueryFingerprint {
	sourceIDs := append([]string(nil), q.SourceIDs...)
	sort.Strings(sourceIDs)
	keywords := append([]string(nil), q.Keywords...)
	sort.Strings(keywords)
	categories := append([]string(nil), q.Categories...)
	sort.Strings(categories)

	var b strings.Builder
	b.WriteString("src=")
	b.WriteString(strings.Join(sourceIDs, ","))
	b.WriteString("|range=")
	if q.DateRange != nil {
		b.WriteString(q.DateRange.Start.UTC().Format(time.RFC3339Nano))
		b.WriteByte(',')
		b.WriteString(q.DateRange.End.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString("|kw=")
	b.WriteString(strings.Join(keywords, ","))
	b.WriteString("|cat=")
	b.WriteString(strings.Join(categories, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return QueryFingerprint(hex.EncodeToString(sum[:]))
}

// CacheStats tracks hit/miss/eviction counters owned exclusively by EventCache.
type CacheStats struct {
	MemoryHits       int64
	MemoryMisses     int64
	PersistentHits   int64
	PersistentMisses int64
	TotalEvents      int64
	Evictions        int64
}

// HealthStatus is the result of a per-source health probe.
type HealthStatus struct {
	SourceID     string
	IsHealthy    bool
	LastCheck    time.Time
	ResponseTime time.Duration
	ErrorMessage string
}

// FetchResult is the per-source outcome record produced by the Fetch
// Coordinator and surfaced by CalendarManager.fetchEvents.
type FetchResult struct {
	SourceID   string
	Success    bool
	FetchTime  time.Duration
	Error      string
	EventCount int
}

// Sentinel errors for the programming-error class of failure: these are
// raised synchronously, never aggregated into a FetchResult.
var (
	ErrSourceNotFound        = errors.New("source not found")
	ErrUnsupportedSourceType = errors.New("unsupported source type")
	ErrSchemaMismatch        = errors.New("schema mismatch")
)

// Query-class errors for adapters; the Fetch Coordinator catches these and
// records them in a FetchResult rather than propagating them.
var (
	ErrNetwork       = errors.New("network error")
	ErrAuth          = errors.New("auth error")
	ErrProtocol      = errors.New("protocol error")
	ErrNormalization = errors.New("normalization error")
)

// MatchesQuery applies the AND-combined predicates of a QueryDescriptor to
// a single normalized event. The sqlite store's FindByQuery uses it to
// re-check every row its SQL pre-filter returns.
func MatchesQuery(e *NormalizedEvent, q QueryDescriptor) bool {
	if len(q.SourceIDs) > 0 {
		found := false
		for _, id := range q.SourceIDs {
			if id == e.SourceID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.DateRange != nil {
		if e.EndDate.Before(q.DateRange.Start) || e.StartDate.After(q.DateRange.End) {
			return false
		}
	}
	if len(q.Keywords) > 0 {
		title := strings.ToLower(e.Title)
		desc := strings.ToLower(e.Description)
		for _, kw := range q.Keywords {
			kwl := strings.ToLower(kw)
			if !strings.Contains(title, kwl) && !strings.Contains(desc, kwl) {
				return false
			}
		}
	}
	if len(q.Categories) > 0 {
		for _, cat := range q.Categories {
			found := false
			for _, ec := range e.Categories {
				if strings.EqualFold(cat, ec) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}
