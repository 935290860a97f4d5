package icaladapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arborcal/calagg/internal/model"
)

const testICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:1
SUMMARY:Standup
DTSTART:20240115T100000Z
DTEND:20240115T110000Z
LAST-MODIFIED:20240110T090000Z
END:VEVENT
END:VCALENDAR
`

func TestFetchAndNormalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(testICS))
	}))
	defer srv.Close()

	a := New(nil)
	source := model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, URL: srv.URL}
	dateRange := model.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	raw, err := a.FetchEvents(context.Background(), source, dateRange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected 1 raw event, got %d", len(raw))
	}

	normalized, err := a.NormalizeEvent(raw[0], source.ID)
	if err != nil {
		t.Fatalf("unexpected normalize error: %v", err)
	}
	if normalized.ID != "s1:1" {
		t.Fatalf("expected id s1:1, got %s", normalized.ID)
	}
	if normalized.SourceID != "s1" {
		t.Fatalf("expected sourceId s1, got %s", normalized.SourceID)
	}
}

func TestFetchEventsOutOfRangeExcluded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testICS))
	}))
	defer srv.Close()

	a := New(nil)
	source := model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, URL: srv.URL}
	dateRange := model.DateRange{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	raw, err := a.FetchEvents(context.Background(), source, dateRange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected event outside range to be excluded, got %d", len(raw))
	}
}

func TestValidateSourceReflectsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New(nil)
	source := model.CalendarSource{ID: "s1", Type: model.SourceTypeICal, URL: srv.URL}
	if a.ValidateSource(context.Background(), source) {
		t.Fatalf("expected validation to fail on 401")
	}
}
