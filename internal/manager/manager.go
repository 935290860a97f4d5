// Package manager implements the CalendarManager (C7): the public entry
// point that ties the Adapter Registry, Fetch Coordinator, EventCache and
// deduplication together into fetchEvents/refreshSource/getEventDetails
// and source CRUD.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arborcal/calagg/internal/adapter"
	"github.com/arborcal/calagg/internal/eventcache"
	"github.com/arborcal/calagg/internal/fetch"
	"github.com/arborcal/calagg/internal/model"
)

// Manager is the CalendarManager facade.
type Manager struct {
	mu        sync.RWMutex
	sources   map[string]model.CalendarSource
	registry  *adapter.Registry
	cache     *eventcache.Cache
	coord     *fetch.Coordinator
	wideRange model.DateRange
}

func New(registry *adapter.Registry, cache *eventcache.Cache, coord *fetch.Coordinator) *Manager {
	now := time.Now()
	return &Manager{
		sources:  make(map[string]model.CalendarSource),
		registry: registry,
		cache:    cache,
		coord:    coord,
		wideRange: model.DateRange{
			Start: now.AddDate(-1, 0, 0),
			End:   now.AddDate(1, 0, 0),
		},
	}
}

// FetchResult is the aggregate outcome of a fetchEvents call.
type FetchResult struct {
	Events  []*model.NormalizedEvent
	Results []model.FetchResult
	Errors  []string
}

func (m *Manager) enabledSources(sourceIDs []string) []model.CalendarSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(sourceIDs) == 0 {
		var out []model.CalendarSource
		for _, s := range m.sources {
			if s.Enabled {
				out = append(out, s)
			}
		}
		return out
	}
	var out []model.CalendarSource
	for _, id := range sourceIDs {
		if s, ok := m.sources[id]; ok && s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// FetchEvents resolves a QueryDescriptor against the cache, falling back
// to a concurrent fan-out across the selected sources on a miss.
func (m *Manager) FetchEvents(ctx context.Context, dateRange model.DateRange, sourceIDs []string) (*FetchResult, error) {
	sources := m.enabledSources(sourceIDs)
	if len(sources) == 0 {
		return &FetchResult{Errors: []string{"No enabled calendar sources available"}}, nil
	}

	selectedIDs := make([]string, len(sources))
	for i, s := range sources {
		selectedIDs[i] = s.ID
	}
	q := model.QueryDescriptor{SourceIDs: selectedIDs, DateRange: &dateRange}

	if cached, ok, err := m.cache.GetEvents(ctx, q); err != nil {
		return nil, err
	} else if ok {
		results := make([]model.FetchResult, len(sources))
		for i, s := range sources {
			results[i] = model.FetchResult{SourceID: s.ID, Success: true, FetchTime: 0}
		}
		return &FetchResult{Events: cached, Results: results}, nil
	}

	outcomes := m.coord.FetchAll(ctx, sources, m.registry.Lookup, dateRange)

	var merged []*model.NormalizedEvent
	results := make([]model.FetchResult, len(outcomes))
	var errs []string
	for i, out := range outcomes {
		results[i] = out.Result
		if out.Err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", out.SourceID, out.Err))
			continue
		}
		a, err := m.registry.Lookup(sources[i].Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", out.SourceID, err))
			continue
		}
		for _, raw := range out.Events {
			normalized, err := a.NormalizeEvent(raw, out.SourceID)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", out.SourceID, err))
				continue
			}
			merged = append(merged, normalized)
		}
		if err := m.cache.TouchSourceRefresh(ctx, out.SourceID, time.Now()); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", out.SourceID, err))
		}
	}

	deduped := model.Dedupe(merged)
	if err := m.cache.SetEvents(ctx, q, deduped); err != nil {
		return nil, err
	}

	return &FetchResult{Events: deduped, Results: results, Errors: errs}, nil
}

// RefreshSource bypasses the cache read path: it invalidates the source,
// fetches fresh, and writes the result back.
func (m *Manager) RefreshSource(ctx context.Context, sourceID string, dateRange model.DateRange) (model.FetchResult, error) {
	m.mu.RLock()
	source, ok := m.sources[sourceID]
	m.mu.RUnlock()
	if !ok {
		return model.FetchResult{}, model.ErrSourceNotFound
	}

	if err := m.cache.InvalidateSource(ctx, sourceID); err != nil {
		return model.FetchResult{}, err
	}

	a, err := m.registry.Lookup(source.Type)
	if err != nil {
		return model.FetchResult{SourceID: sourceID, Success: false, Error: err.Error()}, nil
	}
	out := m.coord.Fetch(ctx, a, source, dateRange)
	if out.Err != nil {
		return out.Result, nil
	}

	var normalized []*model.NormalizedEvent
	for _, raw := range out.Events {
		e, err := a.NormalizeEvent(raw, sourceID)
		if err != nil {
			continue
		}
		normalized = append(normalized, e)
	}
	q := model.QueryDescriptor{SourceIDs: []string{sourceID}, DateRange: &dateRange}
	if err := m.cache.SetEvents(ctx, q, model.Dedupe(normalized)); err != nil {
		return model.FetchResult{}, err
	}
	if err := m.cache.TouchSourceRefresh(ctx, sourceID, time.Now()); err != nil {
		return model.FetchResult{}, err
	}
	return out.Result, nil
}

// EventDetailsResult is the outcome of getEventDetails.
type EventDetailsResult struct {
	Found bool
	Event *model.NormalizedEvent
	Error string
}

// GetEventDetails tries the persistent index first, then falls back to
// fanning out to every enabled source over a wide default date range.
// includeRecurrence is advisory only: recurrence is always carried
// opaquely on NormalizedEvent.Recurrence regardless of its value.
func (m *Manager) GetEventDetails(ctx context.Context, eventID string, includeRecurrence bool) (EventDetailsResult, error) {
	found, err := m.cache.FindByID(ctx, eventID)
	if err != nil {
		return EventDetailsResult{}, err
	}
	if found != nil {
		return EventDetailsResult{Found: true, Event: found}, nil
	}

	sources := m.enabledSources(nil)
	if len(sources) == 0 {
		return EventDetailsResult{Found: false, Error: "No enabled calendar sources available"}, nil
	}

	outcomes := m.coord.FetchAll(ctx, sources, m.registry.Lookup, m.wideRange)
	for i, out := range outcomes {
		if out.Err != nil {
			return EventDetailsResult{Found: false, Error: out.Err.Error()}, nil
		}
		a, err := m.registry.Lookup(sources[i].Type)
		if err != nil {
			continue
		}
		for _, raw := range out.Events {
			e, err := a.NormalizeEvent(raw, sources[i].ID)
			if err != nil {
				continue
			}
			if e.ID == eventID {
				return EventDetailsResult{Found: true, Event: e}, nil
			}
		}
	}

	return EventDetailsResult{Found: false, Error: fmt.Sprintf("Event '%s' not found in any configured calendar sources", eventID)}, nil
}

// AddSource registers a new source, generating an ID if the caller left
// one unset.
func (m *Manager) AddSource(source model.CalendarSource) model.CalendarSource {
	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source.ID] = source
	return source
}

// UpdateSource replaces an existing source's configuration and
// invalidates its cache entries.
func (m *Manager) UpdateSource(ctx context.Context, source model.CalendarSource) error {
	m.mu.Lock()
	if _, ok := m.sources[source.ID]; !ok {
		m.mu.Unlock()
		return model.ErrSourceNotFound
	}
	m.sources[source.ID] = source
	m.mu.Unlock()
	return m.cache.InvalidateSource(ctx, source.ID)
}

// RemoveSource deletes a source's configuration and invalidates its
// cache entries.
func (m *Manager) RemoveSource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	if _, ok := m.sources[sourceID]; !ok {
		m.mu.Unlock()
		return model.ErrSourceNotFound
	}
	delete(m.sources, sourceID)
	m.mu.Unlock()
	return m.cache.InvalidateSource(ctx, sourceID)
}

// GetSource returns the configuration for sourceID.
func (m *Manager) GetSource(sourceID string) (model.CalendarSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[sourceID]
	return s, ok
}

// GetSources returns every configured source, enabled or not.
func (m *Manager) GetSources() []model.CalendarSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CalendarSource, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out
}

// ValidateSource looks up the adapter for source.Type and runs its cheap
// reachability probe. An unsupported type returns false together with
// model.ErrUnsupportedSourceType; a panicking adapter resolves to false
// with a nil error.
func (m *Manager) ValidateSource(ctx context.Context, source model.CalendarSource) (ok bool, err error) {
	a, lookupErr := m.registry.Lookup(source.Type)
	if lookupErr != nil {
		return false, lookupErr
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return a.ValidateSource(ctx, source), nil
}
