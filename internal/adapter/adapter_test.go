package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/arborcal/calagg/internal/model"
)

type stubAdapter struct {
	typ model.SourceType
}

func (s *stubAdapter) SupportedType() model.SourceType { return s.typ }
func (s *stubAdapter) FetchEvents(ctx context.Context, source model.CalendarSource, dr model.DateRange) ([]model.RawEvent, error) {
	return nil, nil
}
func (s *stubAdapter) NormalizeEvent(raw model.RawEvent, sourceID string) (*model.NormalizedEvent, error) {
	return nil, nil
}
func (s *stubAdapter) ValidateSource(ctx context.Context, source model.CalendarSource) bool {
	return true
}
func (s *stubAdapter) GetSourceStatus(ctx context.Context, source model.CalendarSource) (SourceStatus, error) {
	return SourceStatus{IsHealthy: true, LastCheck: time.Now()}, nil
}

func TestRegistryLookupUnsupportedType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(model.SourceTypeICal)
	if err != model.ErrUnsupportedSourceType {
		t.Fatalf("expected ErrUnsupportedSourceType, got %v", err)
	}
}

func TestRegistryReplacesOnSecondRegistration(t *testing.T) {
	r := NewRegistry()
	first := &stubAdapter{typ: model.SourceTypeICal}
	second := &stubAdapter{typ: model.SourceTypeICal}
	r.Register(first)
	r.Register(second)

	got, err := r.Lookup(model.SourceTypeICal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != second {
		t.Fatalf("expected second registration to win")
	}
}
