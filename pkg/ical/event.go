package ical

import "time"

// Event is the parsed-but-not-yet-normalized shape of a single VEVENT.
// Adapters map this into model.NormalizedEvent; the core never sees it
// directly.
type Event struct {
	UID          string
	Summary      string
	Description  string
	LocationName string
	Start        time.Time
	End          time.Time
	Duration     time.Duration
	IsAllDay     bool
	IsRecurring  bool
	RRule        string
	RDates       []time.Time
	ExDates      []time.Time
	RecurrenceID *time.Time

	Organizer   string // email address of organizer
	OrganizerCN string // organizer display name, when present
	Categories  []string
	URL         string

	LastModified time.Time

	RawData []byte
}

// GenerateEventETag derives a stable identifier suffix from the instance's
// start (or its RECURRENCE-ID, for an expanded instance).
func GenerateEventETag(event *Event) string {
	if event.RecurrenceID != nil {
		return event.UID + "-" + event.RecurrenceID.UTC().Format("20060102T150405Z")
	}
	return event.UID + "-" + event.Start.UTC().Format("20060102T150405Z")
}
