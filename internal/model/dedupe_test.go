package model

import (
	"testing"
	"time"
)

func mkEvent(sourceID, id, title string, start time.Time, lastModified time.Time, locName string) *NormalizedEvent {
	var loc *Location
	if locName != "" {
		loc = &Location{Name: locName}
	}
	return &NormalizedEvent{
		ID:           id,
		SourceID:     sourceID,
		Title:        title,
		StartDate:    start,
		EndDate:      start.Add(time.Hour),
		Location:     loc,
		LastModified: lastModified,
	}
}

func TestDedupeTieBreakOnLastModified(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	a := mkEvent("s1", "x", "Dup", base, base.Add(-time.Hour), "L")
	b := mkEvent("s2", "x", "Dup", base, base, "L")

	out := Dedupe([]*NormalizedEvent{a, b})
	if len(out) != 1 {
		t.Fatalf("expected 1 event after dedupe, got %d", len(out))
	}
	if out[0].SourceID != "s2" {
		t.Fatalf("expected winner sourceId s2, got %s", out[0].SourceID)
	}
}

func TestDedupeIdempotence(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []*NormalizedEvent{
		mkEvent("s1", "x", " Dup ", base, base, "L"),
		mkEvent("s2", "x", "dup", base, base.Add(time.Minute), "l"),
		mkEvent("s3", "y", "Other", base.Add(24*time.Hour), base, ""),
	}

	once := Dedupe(events)
	twice := Dedupe(once)

	if len(once) != len(twice) {
		t.Fatalf("dedupe not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID || once[i].SourceID != twice[i].SourceID {
			t.Fatalf("dedupe not idempotent at index %d", i)
		}
	}
}

func TestDedupeBothLocationsAbsentCountsAsMatch(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	a := mkEvent("s1", "x", "NoLoc", base, base, "")
	b := mkEvent("s2", "x", "NoLoc", base, base.Add(time.Minute), "")

	out := Dedupe([]*NormalizedEvent{a, b})
	if len(out) != 1 {
		t.Fatalf("expected both-absent location to count as match, got %d events", len(out))
	}
	if out[0].SourceID != "s2" {
		t.Fatalf("expected s2 (later lastModified) to win, got %s", out[0].SourceID)
	}
}

func TestDedupeDistinctLocationsDoNotMerge(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	a := mkEvent("s1", "x", "Same", base, base, "Room A")
	b := mkEvent("s2", "x", "Same", base, base, "Room B")

	out := Dedupe([]*NormalizedEvent{a, b})
	if len(out) != 2 {
		t.Fatalf("expected distinct locations to remain separate events, got %d", len(out))
	}
}
