package model

import "strings"

type dedupeKey struct {
	title    string
	start    int64
	end      int64
	location string
}

func keyFor(e *NormalizedEvent) dedupeKey {
	loc := ""
	if e.Location != nil {
		loc = strings.ToLower(strings.TrimSpace(e.Location.Name))
	}
	return dedupeKey{
		title:    strings.ToLower(strings.TrimSpace(e.Title)),
		start:    e.StartDate.UTC().UnixNano(),
		end:      e.EndDate.UTC().UnixNano(),
		location: loc,
	}
}

// Dedupe applies the cross-source conflict policy: events are duplicates when
// title (case-insensitive, trimmed), start, end, and location.name
// (case-insensitive, trimmed, both-absent counts as match) all match.
// Among a duplicate group the event with the greatest LastModified wins,
// tie-broken by lexicographically smallest SourceID, then ID. The winner's
// SourceID is preserved — duplicates are never merged into a synthetic
// source. Output order follows first-seen order of each group's winner.
func Dedupe(events []*NormalizedEvent) []*NormalizedEvent {
	groups := make(map[dedupeKey][]*NormalizedEvent)
	var order []dedupeKey

	for _, e := range events {
		k := keyFor(e)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	out := make([]*NormalizedEvent, 0, len(order))
	for _, k := range order {
		out = append(out, winner(groups[k]))
	}
	return out
}

func winner(group []*NormalizedEvent) *NormalizedEvent {
	best := group[0]
	for _, e := range group[1:] {
		if better(e, best) {
			best = e
		}
	}
	return best
}

func better(a, b *NormalizedEvent) bool {
	if !a.LastModified.Equal(b.LastModified) {
		return a.LastModified.After(b.LastModified)
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	return a.ID < b.ID
}
