// Package sync implements the calendar reconciliation engine: it diffs full
// event snapshots fetched from external sources against the store, detects
// creates, updates, and deletes, maintains the per-record sync lifecycle, and
// surfaces locally authored changes for outbound push.
//
// The package contains four main components:
//
//   - [Reconciler] computes and applies the inbound diff for one source.
//   - [Orchestrator] drives a full sync pass: fetch, reconcile, link, report.
//   - [OutboundQueue] projects pending records and dispatches pushes.
//   - [LinkResolver] attaches client/session links to events, best effort.
package sync

import (
	"context"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

// SourceEvent is an event as handed over by a fetch adapter. It carries the
// source's identifier and descriptive fields only; sync lifecycle state is
// the store's concern.
type SourceEvent struct {
	ExternalID   string
	Title        string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	AllDay       bool
	Attendees    []string
	RecurrenceID string
	// RawData preserves the source's original representation for debugging
	// and future reprocessing.
	RawData string
}

// EventStore is the persistence contract the engine consumes.
// Implemented by [db.DB]. Uniqueness of (owner, externalID, source) is
// enforced by the store so the reconciler never takes its own locks.
type EventStore interface {
	FindEventsByOwnerAndSource(ctx context.Context, ownerID string, source db.EventSource) ([]*db.CalendarEvent, error)
	FindEventByNaturalKey(ctx context.Context, ownerID, externalID string, source db.EventSource) (*db.CalendarEvent, error)
	FindEventByID(ctx context.Context, id string) (*db.CalendarEvent, error)
	UpsertEvent(ctx context.Context, event *db.CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
	FindPendingEventsByOwner(ctx context.Context, ownerID string) ([]*db.CalendarEvent, error)
}

// Roster provides read-only access to the owner's clients and scheduled
// sessions. The link resolver never writes through this interface.
type Roster interface {
	GetClientsByOwner(ctx context.Context, ownerID string) ([]*db.Client, error)
	FindSessionsInWindow(ctx context.Context, ownerID string, from, to time.Time) ([]*db.Session, error)
}

// ReportStore records the outcome of sync passes.
type ReportStore interface {
	CreateSyncLog(ctx context.Context, log *db.SyncLog) error
}

// Fetcher retrieves the complete current event list for an owner from one
// external source. Implementations must return an error for partial or
// truncated results; a short list must never stand in for a failed fetch,
// because the reconciler interprets absence as deletion.
type Fetcher interface {
	FetchEvents(ctx context.Context, ownerID string) ([]SourceEvent, error)
}

// Pusher propagates a locally originated or locally edited event to its
// external source of record.
type Pusher interface {
	// PushCreate creates the event upstream and returns the external id the
	// source assigned to it.
	PushCreate(ctx context.Context, event *db.CalendarEvent) (externalID string, err error)
	PushUpdate(ctx context.Context, event *db.CalendarEvent) error
	PushDelete(ctx context.Context, event *db.CalendarEvent) error
}

// AdapterRegistry resolves the fetch/push adapters for a source.
// Implemented by [provider.Registry].
type AdapterRegistry interface {
	Fetcher(source db.EventSource) (Fetcher, error)
	Pusher(source db.EventSource) (Pusher, error)
}
