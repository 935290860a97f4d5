package ical

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ParseCalendar decodes a raw .ics payload into the set of VEVENT
// components it contains. Malformed events are silently skipped rather
// than failing the whole payload; only a payload that cannot be decoded
// at all returns an error.
func ParseCalendar(data []byte) ([]*Event, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var events []*Event
	for _, comp := range cal.Children {
		if comp.Name != goical.CompEvent {
			continue
		}
		event, err := parseEvent(comp, data)
		if err != nil {
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// ValidateRRule confirms an RRULE string is well-formed relative to its
// DTSTART. Recurrence expansion itself is not a core responsibility;
// this is the one recurrence concern the core does own: rejecting a
// malformed rule at parse time (parseEvent returns the error and
// ParseCalendar skips that event) rather than storing a rule nothing can
// ever parse later.
func ValidateRRule(dtstart time.Time, rruleStr string) error {
	if strings.TrimSpace(rruleStr) == "" {
		return nil
	}
	rruleText := "DTSTART:" + dtstart.UTC().Format("20060102T150405Z") + "\nRRULE:" + rruleStr
	_, err := rrule.StrToRRule(rruleText)
	if err != nil {
		return fmt.Errorf("invalid RRULE: %w", err)
	}
	return nil
}

func parseEvent(comp *goical.Component, originalData []byte) (*Event, error) {
	event := &Event{}

	if uid := comp.Props.Get(goical.PropUID); uid != nil {
		event.UID = uid.Value
	} else {
		return nil, fmt.Errorf("missing UID")
	}

	if summary := comp.Props.Get(goical.PropSummary); summary != nil {
		event.Summary = summary.Value
	}
	if desc := comp.Props.Get(goical.PropDescription); desc != nil {
		event.Description = desc.Value
	}
	if loc := comp.Props.Get(goical.PropLocation); loc != nil {
		event.LocationName = loc.Value
	}
	if u := comp.Props.Get(goical.PropURL); u != nil {
		event.URL = u.Value
	}
	if org := comp.Props.Get(goical.PropOrganizer); org != nil {
		event.Organizer = strings.TrimPrefix(strings.ToLower(org.Value), "mailto:")
		event.OrganizerCN = org.Params.Get("CN")
	}
	for _, cat := range comp.Props.Values(goical.PropCategories) {
		for _, c := range strings.Split(cat.Value, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				event.Categories = append(event.Categories, c)
			}
		}
	}

	dtstart := comp.Props.Get(goical.PropDateTimeStart)
	if dtstart == nil {
		return nil, fmt.Errorf("missing DTSTART")
	}
	start, isAllDay, err := ParseDateTime(dtstart.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}
	event.Start = start
	event.IsAllDay = isAllDay

	if dtend := comp.Props.Get(goical.PropDateTimeEnd); dtend != nil {
		end, _, err := ParseDateTime(dtend.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND: %w", err)
		}
		event.End = end
		event.Duration = end.Sub(start)
	} else if duration := comp.Props.Get(goical.PropDuration); duration != nil {
		dur, err := parseDuration(duration.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid DURATION: %w", err)
		}
		event.Duration = dur
		event.End = start.Add(dur)
	} else if isAllDay {
		event.Duration = 24 * time.Hour
		event.End = start.Add(event.Duration)
	} else {
		event.End = start
	}

	if rr := comp.Props.Get(goical.PropRecurrenceRule); rr != nil {
		if err := ValidateRRule(start, rr.Value); err != nil {
			return nil, err
		}
		event.RRule = rr.Value
		event.IsRecurring = true
	}

	for _, rdateProp := range comp.Props.Values(goical.PropRecurrenceDates) {
		dates, err := parseMultipleDates(rdateProp.Value)
		if err != nil {
			continue
		}
		event.RDates = append(event.RDates, dates...)
	}
	if len(event.RDates) > 0 {
		event.IsRecurring = true
	}

	for _, exdateProp := range comp.Props.Values(goical.PropExceptionDates) {
		dates, err := parseMultipleDates(exdateProp.Value)
		if err != nil {
			continue
		}
		event.ExDates = append(event.ExDates, dates...)
	}

	if recID := comp.Props.Get(goical.PropRecurrenceID); recID != nil {
		recTime, _, err := ParseDateTime(recID.Value)
		if err == nil {
			event.RecurrenceID = &recTime
		}
	}

	lastModified := start
	if lm := comp.Props.Get(goical.PropLastModified); lm != nil {
		if t, _, err := ParseDateTime(lm.Value); err == nil {
			lastModified = t
		}
	} else if dtstamp := comp.Props.Get(goical.PropDateTimeStamp); dtstamp != nil {
		if t, _, err := ParseDateTime(dtstamp.Value); err == nil {
			lastModified = t
		}
	}
	event.LastModified = lastModified

	event.RawData = originalData

	return event, nil
}
