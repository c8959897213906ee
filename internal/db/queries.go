package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const eventColumns = `id, owner_id, external_id, source, title, description, location,
	start_time, end_time, all_day, attendees, recurrence_id, raw_data,
	linked_client_id, linked_session_id, sync_status, pending_intent,
	last_synced_at, sync_error, created_at, updated_at`

// FindEventsByOwnerAndSource returns all calendar events for an owner and source.
func (db *DB) FindEventsByOwnerAndSource(ctx context.Context, ownerID string, source EventSource) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE owner_id = ? AND source = ?`

	rows, err := db.conn.QueryContext(ctx, query, ownerID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindEventByNaturalKey returns the event with the given (owner, externalID, source)
// triple, or ErrNotFound.
func (db *DB) FindEventByNaturalKey(ctx context.Context, ownerID, externalID string, source EventSource) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE owner_id = ? AND external_id = ? AND source = ?`

	row := db.conn.QueryRowContext(ctx, query, ownerID, externalID, source)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by natural key: %w", err)
	}
	return event, nil
}

// FindEventByID returns the event with the given store-assigned id, or ErrNotFound.
func (db *DB) FindEventByID(ctx context.Context, id string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = ?`

	row := db.conn.QueryRowContext(ctx, query, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by id: %w", err)
	}
	return event, nil
}

// UpsertEvent inserts or updates an event addressed by its natural key.
// Running the same upsert twice yields one row, never two: an existing row
// with the same (owner_id, external_id, source) is overwritten in place and
// keeps its store-assigned id. The event's ID field is populated on return.
func (db *DB) UpsertEvent(ctx context.Context, event *CalendarEvent) error {
	now := time.Now().UTC()
	event.UpdatedAt = now

	attendees, err := json.Marshal(event.Attendees)
	if err != nil {
		return fmt.Errorf("failed to encode attendees: %w", err)
	}

	// A record whose external id was rewritten by a push (create confirmed
	// upstream) no longer matches its old natural key, so address it by the
	// store-assigned id when the caller has one.
	if event.ID != "" {
		query := `UPDATE calendar_events SET
			external_id = ?, title = ?, description = ?, location = ?, start_time = ?, end_time = ?,
			all_day = ?, attendees = ?, recurrence_id = ?, raw_data = ?,
			linked_client_id = ?, linked_session_id = ?, sync_status = ?,
			pending_intent = ?, last_synced_at = ?, sync_error = ?, updated_at = ?
			WHERE id = ?`

		result, err := db.conn.ExecContext(ctx, query,
			event.ExternalID, event.Title, event.Description, event.Location, event.StartTime, event.EndTime,
			event.AllDay, string(attendees), event.RecurrenceID, event.RawData,
			nullString(event.LinkedClientID), nullString(event.LinkedSessionID), event.SyncStatus,
			string(event.PendingIntent), event.LastSyncedAt, event.SyncError, event.UpdatedAt,
			event.ID,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: event %s/%s/%s", ErrDuplicate, event.OwnerID, event.ExternalID, event.Source)
			}
			return fmt.Errorf("failed to update event: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}
	}

	// Try to update against the natural key.
	query := `UPDATE calendar_events SET
		title = ?, description = ?, location = ?, start_time = ?, end_time = ?,
		all_day = ?, attendees = ?, recurrence_id = ?, raw_data = ?,
		linked_client_id = ?, linked_session_id = ?, sync_status = ?,
		pending_intent = ?, last_synced_at = ?, sync_error = ?, updated_at = ?
		WHERE owner_id = ? AND external_id = ? AND source = ?`

	result, err := db.conn.ExecContext(ctx, query,
		event.Title, event.Description, event.Location, event.StartTime, event.EndTime,
		event.AllDay, string(attendees), event.RecurrenceID, event.RawData,
		nullString(event.LinkedClientID), nullString(event.LinkedSessionID), event.SyncStatus,
		string(event.PendingIntent), event.LastSyncedAt, event.SyncError, event.UpdatedAt,
		event.OwnerID, event.ExternalID, event.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		// Row existed: make sure the caller sees the store-assigned id.
		existing, err := db.FindEventByNaturalKey(ctx, event.OwnerID, event.ExternalID, event.Source)
		if err != nil {
			return err
		}
		event.ID = existing.ID
		event.CreatedAt = existing.CreatedAt
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = now

	insertQuery := `INSERT INTO calendar_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.ExecContext(ctx, insertQuery,
		event.ID, event.OwnerID, event.ExternalID, event.Source,
		event.Title, event.Description, event.Location, event.StartTime, event.EndTime,
		event.AllDay, string(attendees), event.RecurrenceID, event.RawData,
		nullString(event.LinkedClientID), nullString(event.LinkedSessionID), event.SyncStatus,
		string(event.PendingIntent), event.LastSyncedAt, event.SyncError,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: event %s/%s/%s", ErrDuplicate, event.OwnerID, event.ExternalID, event.Source)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// DeleteEvent removes an event by its store-assigned id.
func (db *DB) DeleteEvent(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// FindPendingEventsByOwner returns all events in a pending_* state for the
// owner, oldest first, so the outbound queue pushes in submission order.
func (db *DB) FindPendingEventsByOwner(ctx context.Context, ownerID string) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE owner_id = ? AND sync_status IN (?, ?, ?)
		ORDER BY updated_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, ownerID,
		SyncStatusPendingCreate, SyncStatusPendingUpdate, SyncStatusPendingDelete)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindErroredEventsByOwner returns all events stuck in the error state.
func (db *DB) FindErroredEventsByOwner(ctx context.Context, ownerID string) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE owner_id = ? AND sync_status = ? ORDER BY updated_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, ownerID, SyncStatusError)
	if err != nil {
		return nil, fmt.Errorf("failed to query errored events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetClientsByOwner returns the owner's client roster.
func (db *DB) GetClientsByOwner(ctx context.Context, ownerID string) ([]*Client, error) {
	query := `SELECT id, owner_id, name, email, created_at FROM clients WHERE owner_id = ? ORDER BY name`

	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		client := &Client{}
		if err := rows.Scan(&client.ID, &client.OwnerID, &client.Name, &client.Email, &client.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

// CreateClient inserts a client record.
func (db *DB) CreateClient(ctx context.Context, client *Client) error {
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	client.CreatedAt = time.Now().UTC()

	query := `INSERT INTO clients (id, owner_id, name, email, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.conn.ExecContext(ctx, query, client.ID, client.OwnerID, client.Name, client.Email, client.CreatedAt); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// FindSessionsInWindow returns sessions for the owner scheduled between from
// and to, inclusive.
func (db *DB) FindSessionsInWindow(ctx context.Context, ownerID string, from, to time.Time) ([]*Session, error) {
	query := `SELECT id, owner_id, client_id, scheduled_at, duration_min, created_at
		FROM sessions WHERE owner_id = ? AND scheduled_at >= ? AND scheduled_at <= ?
		ORDER BY scheduled_at`

	rows, err := db.conn.QueryContext(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(&session.ID, &session.OwnerID, &session.ClientID,
			&session.ScheduledAt, &session.DurationMin, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// CreateSession inserts a session record.
func (db *DB) CreateSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.CreatedAt = time.Now().UTC()

	query := `INSERT INTO sessions (id, owner_id, client_id, scheduled_at, duration_min, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := db.conn.ExecContext(ctx, query, session.ID, session.OwnerID, session.ClientID,
		session.ScheduledAt, session.DurationMin, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// CreateSyncLog creates a new sync log entry.
func (db *DB) CreateSyncLog(ctx context.Context, log *SyncLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now().UTC()

	query := `INSERT INTO sync_logs (id, owner_id, source, success, message,
		events_created, events_updated, events_deleted, events_skipped, error_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query, log.ID, log.OwnerID, log.Source, log.Success, log.Message,
		log.EventsCreated, log.EventsUpdated, log.EventsDeleted, log.EventsSkipped,
		log.ErrorCount, log.Duration.Milliseconds(), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}

// GetSyncLogs returns the most recent sync logs for an owner.
func (db *DB) GetSyncLogs(ctx context.Context, ownerID string, limit int) ([]*SyncLog, error) {
	query := `SELECT id, owner_id, source, success, message,
		events_created, events_updated, events_deleted, events_skipped, error_count, duration_ms, created_at
		FROM sync_logs WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		log := &SyncLog{}
		var durationMs int64
		err := rows.Scan(&log.ID, &log.OwnerID, &log.Source, &log.Success, &log.Message,
			&log.EventsCreated, &log.EventsUpdated, &log.EventsDeleted, &log.EventsSkipped,
			&log.ErrorCount, &durationMs, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		log.Duration = time.Duration(durationMs) * time.Millisecond
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return logs, nil
}

// CleanOldSyncLogs deletes sync logs older than the given time.
func (db *DB) CleanOldSyncLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM sync_logs WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean old sync logs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// scanner matches both *sql.Row and *sql.Rows so scanEvent can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*CalendarEvent, error) {
	event := &CalendarEvent{}
	var attendees string
	var pendingIntent string
	var linkedClient, linkedSession sql.NullString
	var lastSyncedAt sql.NullTime

	err := s.Scan(
		&event.ID, &event.OwnerID, &event.ExternalID, &event.Source,
		&event.Title, &event.Description, &event.Location,
		&event.StartTime, &event.EndTime, &event.AllDay,
		&attendees, &event.RecurrenceID, &event.RawData,
		&linkedClient, &linkedSession, &event.SyncStatus, &pendingIntent,
		&lastSyncedAt, &event.SyncError, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if attendees != "" {
		if err := json.Unmarshal([]byte(attendees), &event.Attendees); err != nil {
			return nil, fmt.Errorf("failed to decode attendees: %w", err)
		}
	}
	event.PendingIntent = SyncStatus(pendingIntent)
	event.LinkedClientID = linkedClient.String
	event.LinkedSessionID = linkedSession.String
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		event.LastSyncedAt = &t
	}

	return event, nil
}

func scanEvents(rows *sql.Rows) ([]*CalendarEvent, error) {
	var events []*CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// nullString maps "" to NULL so optional link columns stay NULL when unset.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueConstraintError checks for a natural-key collision on insert.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint violation")
}
