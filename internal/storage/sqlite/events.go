package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arborcal/calagg/internal/model"
)

// UpsertEvents writes events in a single transaction. A row is replaced
// only when the incoming event's LastModified is at least as recent as
// the row already on disk; an incoming event that is older than what is
// stored is silently dropped (no downgrade).
func (s *Store) UpsertEvents(ctx context.Context, events []*model.NormalizedEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range events {
			var existing time.Time
			err := tx.QueryRowContext(ctx, `
				SELECT last_modified FROM events WHERE source_id = ? AND event_id = ?
			`, e.SourceID, e.ID).Scan(&existing)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if err == nil && e.LastModified.Before(existing) {
				continue
			}

			locationName, locationAddress := "", ""
			if e.Location != nil {
				locationName, locationAddress = e.Location.Name, e.Location.Address
			}
			organizerName, organizerEmail := "", ""
			if e.Organizer != nil {
				organizerName, organizerEmail = e.Organizer.Name, e.Organizer.Email
			}
			categoriesJSON, err := json.Marshal(e.Categories)
			if err != nil {
				return fmt.Errorf("encode categories: %w", err)
			}
			recurrenceJSON := ""
			if e.Recurrence != nil {
				b, err := json.Marshal(e.Recurrence)
				if err != nil {
					return fmt.Errorf("encode recurrence: %w", err)
				}
				recurrenceJSON = string(b)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO events (
					source_id, event_id, title, description, start_date, end_date,
					location_name, location_address, organizer_name, organizer_email,
					categories, url, last_modified, recurrence_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(source_id, event_id) DO UPDATE SET
					title = excluded.title,
					description = excluded.description,
					start_date = excluded.start_date,
					end_date = excluded.end_date,
					location_name = excluded.location_name,
					location_address = excluded.location_address,
					organizer_name = excluded.organizer_name,
					organizer_email = excluded.organizer_email,
					categories = excluded.categories,
					url = excluded.url,
					last_modified = excluded.last_modified,
					recurrence_json = excluded.recurrence_json
			`, e.SourceID, e.ID, e.Title, e.Description, e.StartDate.UTC(), e.EndDate.UTC(),
				locationName, locationAddress, organizerName, organizerEmail,
				string(categoriesJSON), e.URL, e.LastModified.UTC(), recurrenceJSON)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func scanEvent(scan func(dest ...any) error) (*model.NormalizedEvent, error) {
	var e model.NormalizedEvent
	var locationName, locationAddress, organizerName, organizerEmail, categoriesJSON, recurrenceJSON string

	if err := scan(
		&e.SourceID, &e.ID, &e.Title, &e.Description, &e.StartDate, &e.EndDate,
		&locationName, &locationAddress, &organizerName, &organizerEmail,
		&categoriesJSON, &e.URL, &e.LastModified, &recurrenceJSON,
	); err != nil {
		return nil, err
	}

	if locationName != "" || locationAddress != "" {
		e.Location = &model.Location{Name: locationName, Address: locationAddress}
	}
	if organizerName != "" || organizerEmail != "" {
		e.Organizer = &model.Organizer{Name: organizerName, Email: organizerEmail}
	}
	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &e.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
	}
	if recurrenceJSON != "" {
		var r model.RecurrenceRule
		if err := json.Unmarshal([]byte(recurrenceJSON), &r); err != nil {
			return nil, fmt.Errorf("decode recurrence: %w", err)
		}
		e.Recurrence = &r
	}
	return &e, nil
}

const eventColumns = `source_id, event_id, title, description, start_date, end_date,
	location_name, location_address, organizer_name, organizer_email,
	categories, url, last_modified, recurrence_json`

// FindByQuery narrows candidates in SQL on source, date range and keyword
// substring, then re-applies the full predicate set in Go so category
// membership (which SQLite has no native intersection index for) and the
// rest of the descriptor are honored exactly.
func (s *Store) FindByQuery(ctx context.Context, q model.QueryDescriptor) ([]*model.NormalizedEvent, error) {
	var clauses []string
	var args []any

	if len(q.SourceIDs) > 0 {
		placeholders := make([]string, len(q.SourceIDs))
		for i, id := range q.SourceIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "source_id IN ("+strings.Join(placeholders, ",")+")")
	}
	if q.DateRange != nil {
		clauses = append(clauses, "end_date >= ? AND start_date <= ?")
		args = append(args, q.DateRange.Start.UTC(), q.DateRange.End.UTC())
	}
	for _, kw := range q.Keywords {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		like := "%" + kw + "%"
		args = append(args, like, like)
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.NormalizedEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		if model.MatchesQuery(e, q) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// FindByID performs a global by-ID lookup across all sources. The id is
// expected in the "{sourceId}:{rawId}" convention but no source prefix is
// assumed; the event_id column alone is matched.
func (s *Store) FindByID(ctx context.Context, eventID string) (*model.NormalizedEvent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE event_id = ?", eventID)
	e, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// EventsByIDs resolves a result-id list, preserving no particular order.
func (s *Store) EventsByIDs(ctx context.Context, ids []string) ([]*model.NormalizedEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+eventColumns+" FROM events WHERE event_id IN ("+strings.Join(placeholders, ",")+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.NormalizedEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteBySource removes every event row owned by sourceID and drops
// every query-cache row whose result-id list referenced one of them,
// since those cached result sets are no longer reconstructable.
func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT event_id FROM events WHERE source_id = ?", sourceID)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE source_id = ?", sourceID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM source_refresh WHERE source_id = ?", sourceID); err != nil {
			return err
		}

		fpRows, err := tx.QueryContext(ctx, "SELECT fingerprint, result_ids FROM query_cache")
		if err != nil {
			return err
		}
		defer fpRows.Close()

		var stale []string
		for fpRows.Next() {
			var fp, resultIDs string
			if err := fpRows.Scan(&fp, &resultIDs); err != nil {
				return err
			}
			var eventIDs []string
			if err := json.Unmarshal([]byte(resultIDs), &eventIDs); err != nil {
				continue
			}
			for _, id := range eventIDs {
				if containsString(ids, id) {
					stale = append(stale, fp)
					break
				}
			}
		}
		if err := fpRows.Err(); err != nil {
			return err
		}
		for _, fp := range stale {
			if _, err := tx.ExecContext(ctx, "DELETE FROM query_cache WHERE fingerprint = ?", fp); err != nil {
				return err
			}
		}
		return nil
	})
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// CleanupExpired removes query-cache rows past their TTL and event rows
// whose owning source has not been refreshed within persistentTTL of now.
func (s *Store) CleanupExpired(ctx context.Context, now time.Time, persistentTTL time.Duration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT fingerprint, inserted_at, ttl_seconds FROM query_cache")
		if err != nil {
			return err
		}
		var expiredFPs []string
		for rows.Next() {
			var fp string
			var insertedAt time.Time
			var ttlSeconds int64
			if err := rows.Scan(&fp, &insertedAt, &ttlSeconds); err != nil {
				rows.Close()
				return err
			}
			if now.Sub(insertedAt) > time.Duration(ttlSeconds)*time.Second {
				expiredFPs = append(expiredFPs, fp)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, fp := range expiredFPs {
			if _, err := tx.ExecContext(ctx, "DELETE FROM query_cache WHERE fingerprint = ?", fp); err != nil {
				return err
			}
		}

		cutoff := now.Add(-persistentTTL)
		staleRows, err := tx.QueryContext(ctx, "SELECT source_id FROM source_refresh WHERE last_refresh < ?", cutoff)
		if err != nil {
			return err
		}
		var staleSources []string
		for staleRows.Next() {
			var sourceID string
			if err := staleRows.Scan(&sourceID); err != nil {
				staleRows.Close()
				return err
			}
			staleSources = append(staleSources, sourceID)
		}
		staleRows.Close()
		if err := staleRows.Err(); err != nil {
			return err
		}
		for _, sourceID := range staleSources {
			if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE source_id = ?", sourceID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetQueryCache returns the cached result-id list for fp if present and
// still within its TTL.
func (s *Store) GetQueryCache(ctx context.Context, fp model.QueryFingerprint) ([]string, bool, error) {
	var insertedAt time.Time
	var ttlSeconds int64
	var resultIDsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT inserted_at, ttl_seconds, result_ids FROM query_cache WHERE fingerprint = ?
	`, string(fp)).Scan(&insertedAt, &ttlSeconds, &resultIDsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Since(insertedAt) > time.Duration(ttlSeconds)*time.Second {
		return nil, false, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(resultIDsJSON), &ids); err != nil {
		return nil, false, fmt.Errorf("decode result_ids: %w", err)
	}
	return ids, true, nil
}

// PutQueryCache records or replaces the fingerprint's result-id list.
func (s *Store) PutQueryCache(ctx context.Context, fp model.QueryFingerprint, eventIDs []string, ttl time.Duration) error {
	idsJSON, err := json.Marshal(eventIDs)
	if err != nil {
		return fmt.Errorf("encode result_ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_cache (fingerprint, inserted_at, ttl_seconds, result_ids)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			inserted_at = excluded.inserted_at,
			ttl_seconds = excluded.ttl_seconds,
			result_ids = excluded.result_ids
	`, string(fp), time.Now().UTC(), int64(ttl.Seconds()), string(idsJSON))
	return err
}

// TouchSourceRefresh records that sourceID completed a full refresh at ts.
func (s *Store) TouchSourceRefresh(ctx context.Context, sourceID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_refresh (source_id, last_refresh) VALUES (?, ?)
		ON CONFLICT(source_id) DO UPDATE SET last_refresh = excluded.last_refresh
	`, sourceID, ts.UTC())
	return err
}
