package db

import (
	"time"
)

// SyncStatus is the lifecycle label attached to every calendar event record.
// It is a closed set; use IsValid before persisting values that arrive from
// outside the process.
type SyncStatus string

const (
	SyncStatusSynced        SyncStatus = "synced"
	SyncStatusPendingCreate SyncStatus = "pending_create"
	SyncStatusPendingUpdate SyncStatus = "pending_update"
	SyncStatusPendingDelete SyncStatus = "pending_delete"
	SyncStatusError         SyncStatus = "error"
)

// ValidSyncStatuses contains all valid sync status values.
var ValidSyncStatuses = map[SyncStatus]bool{
	SyncStatusSynced:        true,
	SyncStatusPendingCreate: true,
	SyncStatusPendingUpdate: true,
	SyncStatusPendingDelete: true,
	SyncStatusError:         true,
}

// IsValid returns true if the sync status is a known valid value.
func (s SyncStatus) IsValid() bool {
	return ValidSyncStatuses[s]
}

// IsPending returns true for the three pending_* states that make a record
// eligible for outbound push.
func (s SyncStatus) IsPending() bool {
	return s == SyncStatusPendingCreate || s == SyncStatusPendingUpdate || s == SyncStatusPendingDelete
}

// EventSource identifies the system of record for a calendar event.
type EventSource string

const (
	SourceGoogle             EventSource = "google"
	SourcePracticeManagement EventSource = "practice-management"
	SourceLocal              EventSource = "local"
)

// ValidEventSources contains all valid event source values.
var ValidEventSources = map[EventSource]bool{
	SourceGoogle:             true,
	SourcePracticeManagement: true,
	SourceLocal:              true,
}

// IsValid returns true if the event source is a known valid value.
func (es EventSource) IsValid() bool {
	return ValidEventSources[es]
}

// ExternalSources lists the sources subject to inbound reconciliation.
// SourceLocal is deliberately absent: locally authored events only ever move
// through the outbound path.
var ExternalSources = []EventSource{SourceGoogle, SourcePracticeManagement}

// CalendarEvent is the unit of reconciliation. The natural key
// (OwnerID, ExternalID, Source) is unique per store and is what inbound
// reconciliation matches on; ID is store-assigned and opaque to external
// systems.
type CalendarEvent struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"owner_id"`
	ExternalID   string      `json:"external_id"`
	Source       EventSource `json:"source"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Location     string      `json:"location"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	AllDay       bool        `json:"all_day"`
	Attendees    []string    `json:"attendees"`
	RecurrenceID string      `json:"recurrence_id"`
	RawData      string      `json:"raw_data,omitempty"`

	// Weak references: lookup only, never cascade.
	LinkedClientID  string `json:"linked_client_id,omitempty"`
	LinkedSessionID string `json:"linked_session_id,omitempty"`

	SyncStatus SyncStatus `json:"sync_status"`
	// PendingIntent records which pending_* operation an errored record was
	// attempting, so a retry can re-run the same operation. Empty unless
	// SyncStatus is error.
	PendingIntent SyncStatus `json:"pending_intent,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	SyncError     string     `json:"sync_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client is a therapist's client as seen by the link resolver. Read-only
// from the sync engine's perspective.
type Client struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a scheduled clinical session. Read-only from the sync engine's
// perspective.
type Session struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	ClientID    string    `json:"client_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	DurationMin int       `json:"duration_min"`
	CreatedAt   time.Time `json:"created_at"`
}

// SyncLog records the outcome of a single sync pass for one owner/source.
type SyncLog struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	Source        EventSource   `json:"source"`
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	EventsCreated int           `json:"events_created"`
	EventsUpdated int           `json:"events_updated"`
	EventsDeleted int           `json:"events_deleted"`
	EventsSkipped int           `json:"events_skipped"`
	ErrorCount    int           `json:"error_count"`
	Duration      time.Duration `json:"duration"`
	CreatedAt     time.Time     `json:"created_at"`
}
