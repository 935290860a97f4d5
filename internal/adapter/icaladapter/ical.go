// Package icaladapter implements the ical source-type Adapter: a single
// GET of a remote .ics feed, decoded with go-ical and normalized into
// model.NormalizedEvent. It exists to give the Adapter Registry (C1) and
// Fetch Coordinator (C6) something real to drive in tests; full iCal
// parsing correctness is out of this repository's core.
package icaladapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arborcal/calagg/internal/adapter"
	"github.com/arborcal/calagg/internal/model"
	"github.com/arborcal/calagg/pkg/ical"
)

type Adapter struct {
	client *http.Client
}

func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{client: client}
}

func (a *Adapter) SupportedType() model.SourceType { return model.SourceTypeICal }

func (a *Adapter) fetch(ctx context.Context, source model.CalendarSource) ([]byte, error) {
	headers := map[string]string{"Accept": "text/calendar"}
	if token, ok := source.Credentials["bearer"]; ok && token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return adapter.HTTPGet(ctx, a.client, http.MethodGet, source.URL, nil, headers)
}

func (a *Adapter) FetchEvents(ctx context.Context, source model.CalendarSource, dateRange model.DateRange) ([]model.RawEvent, error) {
	data, err := a.fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	events, err := ical.ParseCalendar(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProtocol, err)
	}

	raw := make([]model.RawEvent, 0, len(events))
	for _, e := range events {
		if !e.IsRecurring && (e.End.Before(dateRange.Start) || e.Start.After(dateRange.End)) {
			continue
		}
		raw = append(raw, model.RawEvent{SourceID: source.ID, ID: e.UID, Payload: e})
	}
	return raw, nil
}

func (a *Adapter) NormalizeEvent(raw model.RawEvent, sourceID string) (*model.NormalizedEvent, error) {
	e, ok := raw.Payload.(*ical.Event)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected raw payload type", model.ErrNormalization)
	}
	return adapter.NormalizeICalEvent(e, sourceID)
}

func (a *Adapter) ValidateSource(ctx context.Context, source model.CalendarSource) bool {
	_, err := a.fetch(ctx, source)
	return err == nil
}

func (a *Adapter) GetSourceStatus(ctx context.Context, source model.CalendarSource) (adapter.SourceStatus, error) {
	_, err := a.fetch(ctx, source)
	now := time.Now()
	if err != nil {
		return adapter.SourceStatus{IsHealthy: false, LastCheck: now, ErrorMessage: err.Error()}, nil
	}
	return adapter.SourceStatus{IsHealthy: true, LastCheck: now}, nil
}
