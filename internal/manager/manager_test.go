package manager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arborcal/calagg/internal/adapter"
	"github.com/arborcal/calagg/internal/eventcache"
	"github.com/arborcal/calagg/internal/fetch"
	"github.com/arborcal/calagg/internal/model"
	"github.com/arborcal/calagg/internal/storage/sqlite"
)

type stubAdapter struct {
	sourceType model.SourceType
	events     []model.RawEvent
	healthy    bool
}

func (s *stubAdapter) SupportedType() model.SourceType { return s.sourceType }
func (s *stubAdapter) FetchEvents(ctx context.Context, source model.CalendarSource, dateRange model.DateRange) ([]model.RawEvent, error) {
	return s.events, nil
}
func (s *stubAdapter) NormalizeEvent(raw model.RawEvent, sourceID string) (*model.NormalizedEvent, error) {
	id, _ := raw.Payload.(string)
	return &model.NormalizedEvent{
		ID:           sourceID + ":" + raw.ID,
		SourceID:     sourceID,
		Title:        id,
		StartDate:    time.Now(),
		EndDate:      time.Now().Add(time.Hour),
		LastModified: time.Now(),
	}, nil
}
func (s *stubAdapter) ValidateSource(ctx context.Context, source model.CalendarSource) bool {
	return s.healthy
}
func (s *stubAdapter) GetSourceStatus(ctx context.Context, source model.CalendarSource) (adapter.SourceStatus, error) {
	return adapter.SourceStatus{IsHealthy: s.healthy}, nil
}

func newTestManager(t *testing.T) (*Manager, *adapter.Registry) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "events.db")
	store, err := sqlite.New(dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache := eventcache.New(store, 100, time.Minute, time.Hour, 0)
	t.Cleanup(func() { cache.Close() })

	registry := adapter.NewRegistry()
	coord := fetch.New(fetch.Config{MaxConcurrentFetches: 4, FetchTimeout: time.Second, RetryAttempts: 1, RetryDelay: time.Millisecond})
	return New(registry, cache, coord), registry
}

func TestFetchEventsReturnsErrorWhenNoEnabledSources(t *testing.T) {
	m, _ := newTestManager(t)
	result, err := m.FetchEvents(context.Background(), model.DateRange{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "No enabled calendar sources available" {
		t.Fatalf("expected no-sources error, got %+v", result)
	}
}

func TestFetchEventsDispatchesAndDedupes(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})

	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})

	result, err := m.FetchEvents(context.Background(), model.DateRange{Start: time.Now(), End: time.Now().Add(time.Hour)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}
}

func TestFetchEventsSecondCallServedFromCache(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})
	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})

	dateRange := model.DateRange{Start: time.Now(), End: time.Now().Add(time.Hour)}
	if _, err := m.FetchEvents(context.Background(), dateRange, nil); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	result, err := m.FetchEvents(context.Background(), dateRange, nil)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].FetchTime != 0 {
		t.Fatalf("expected cache hit with fetchTime=0, got %+v", result.Results)
	}
}

func TestUpdateSourceInvalidatesCache(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})
	source := model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true}
	m.AddSource(source)

	dateRange := model.DateRange{Start: time.Now(), End: time.Now().Add(time.Hour)}
	if _, err := m.FetchEvents(context.Background(), dateRange, nil); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if err := m.UpdateSource(context.Background(), source); err != nil {
		t.Fatalf("updateSource failed: %v", err)
	}

	result, err := m.FetchEvents(context.Background(), dateRange, nil)
	if err != nil {
		t.Fatalf("fetch after update failed: %v", err)
	}
	if result.Results[0].FetchTime == 0 {
		t.Fatalf("expected update to invalidate cache and force a live refetch, got %+v", result.Results)
	}
}

func TestRemoveUnknownSourceFails(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.RemoveSource(context.Background(), "missing"); err != model.ErrSourceNotFound {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

// TestFetchEventsReportsPartialFailure covers a fan-out where one source
// succeeds and one has no registered adapter: one event surfaces, both
// sources get a Results entry, and the failing source's error is
// collected rather than aborting the whole call.
func TestFetchEventsReportsPartialFailure(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})

	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})
	m.AddSource(model.CalendarSource{ID: "s2", Type: model.SourceTypeCalDAV, Enabled: true})

	dateRange := model.DateRange{Start: time.Now(), End: time.Now().Add(time.Hour)}
	result, err := m.FetchEvents(context.Background(), dateRange, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(result.Events), result.Events)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(result.Results), result.Results)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d: %+v", len(result.Errors), result.Errors)
	}
}

func TestRefreshSourceUnknownSourceFails(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.RefreshSource(context.Background(), "missing", model.DateRange{}); err != model.ErrSourceNotFound {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestRefreshSourceInvalidatesAndRefetches(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})
	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})

	dateRange := model.DateRange{Start: time.Now(), End: time.Now().Add(time.Hour)}
	out, err := m.RefreshSource(context.Background(), "s1", dateRange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success || out.EventCount != 1 {
		t.Fatalf("expected a successful single-event refresh, got %+v", out)
	}

	details, err := m.GetEventDetails(context.Background(), "s1:1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !details.Found {
		t.Fatalf("expected refreshed event to be found in the index, got %+v", details)
	}
}

func TestGetEventDetailsServedFromCache(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})
	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})

	dateRange := model.DateRange{Start: time.Now(), End: time.Now().Add(time.Hour)}
	if _, err := m.FetchEvents(context.Background(), dateRange, nil); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	details, err := m.GetEventDetails(context.Background(), "s1:1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !details.Found || details.Event == nil || details.Event.ID != "s1:1" {
		t.Fatalf("expected the cached event to be found, got %+v", details)
	}
}

func TestGetEventDetailsFallsBackToLiveFanOut(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})
	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})

	details, err := m.GetEventDetails(context.Background(), "s1:1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !details.Found || details.Event == nil || details.Event.ID != "s1:1" {
		t.Fatalf("expected the live fan-out to find the event, got %+v", details)
	}
}

func TestGetEventDetailsNotFound(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, events: []model.RawEvent{{ID: "1", Payload: "Standup"}}, healthy: true})
	m.AddSource(model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, Enabled: true})

	details, err := m.GetEventDetails(context.Background(), "s1:missing", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Found {
		t.Fatalf("expected not found, got %+v", details)
	}
}

func TestGetEventDetailsNoEnabledSources(t *testing.T) {
	m, _ := newTestManager(t)
	details, err := m.GetEventDetails(context.Background(), "anything", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Found || details.Error == "" {
		t.Fatalf("expected a no-sources error, got %+v", details)
	}
}

func TestValidateSourceReflectsAdapter(t *testing.T) {
	m, registry := newTestManager(t)
	registry.Register(&stubAdapter{sourceType: model.SourceTypeICal, healthy: true})

	ok, err := m.ValidateSource(context.Background(), model.CalendarSource{Type: model.SourceTypeICal})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected validation to succeed")
	}
}

func TestValidateSourceUnsupportedTypeFails(t *testing.T) {
	m, _ := newTestManager(t)
	ok, err := m.ValidateSource(context.Background(), model.CalendarSource{Type: model.SourceTypeCalDAV})
	if err == nil {
		t.Fatalf("expected an error for an unregistered source type")
	}
	if ok {
		t.Fatalf("expected validation to fail")
	}
}
