package adapter

import (
	"fmt"
	"strings"

	"github.com/arborcal/calagg/internal/model"
	"github.com/arborcal/calagg/pkg/ical"
)

// NormalizeICalEvent maps a parsed ical.Event onto model.NormalizedEvent.
// Both the ical and caldav adapters decode the same wire format (go-ical
// VEVENT components) and share this mapping; only the fetch mechanics
// differ between the two.
func NormalizeICalEvent(e *ical.Event, sourceID string) (*model.NormalizedEvent, error) {
	if e.End.Before(e.Start) {
		return nil, fmt.Errorf("%w: endDate before startDate for event %s", model.ErrNormalization, e.UID)
	}

	id := fmt.Sprintf("%s:%s", sourceID, e.UID)

	var loc *model.Location
	if strings.TrimSpace(e.LocationName) != "" {
		loc = &model.Location{Name: e.LocationName}
	}
	var org *model.Organizer
	if strings.TrimSpace(e.Organizer) != "" {
		org = &model.Organizer{Name: e.OrganizerCN, Email: e.Organizer}
	}
	var recurrence *model.RecurrenceRule
	if e.IsRecurring {
		recurrence = &model.RecurrenceRule{RRule: e.RRule, RDates: e.RDates, ExDates: e.ExDates}
	}

	return &model.NormalizedEvent{
		ID:           id,
		SourceID:     sourceID,
		Title:        e.Summary,
		Description:  e.Description,
		StartDate:    e.Start,
		EndDate:      e.End,
		Location:     loc,
		Organizer:    org,
		Categories:   e.Categories,
		URL:          e.URL,
		LastModified: e.LastModified,
		Recurrence:   recurrence,
	}, nil
}
