package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

var (
	ErrIllegalTransition = errors.New("illegal sync status transition")
	ErrNotRetryable      = errors.New("event is not in the error state")
)

// legalTransitions is the closed transition table for the per-record sync
// lifecycle. Anything not listed is illegal; in particular there is no path
// from error to a pending_* state except through an explicit user action
// (a local edit or delete), which prevents silently dropping a failed
// operation.
var legalTransitions = map[db.SyncStatus]map[db.SyncStatus]bool{
	db.SyncStatusSynced: {
		db.SyncStatusSynced:        true, // inbound overwrite
		db.SyncStatusPendingUpdate: true, // local edit
		db.SyncStatusPendingDelete: true, // local delete
	},
	db.SyncStatusPendingCreate: {
		db.SyncStatusPendingCreate: true, // further local edits before first push
		db.SyncStatusSynced:        true, // push succeeded
		db.SyncStatusError:         true, // push failed
	},
	db.SyncStatusPendingUpdate: {
		db.SyncStatusPendingUpdate: true,
		db.SyncStatusPendingDelete: true, // local delete supersedes the edit
		db.SyncStatusSynced:        true,
		db.SyncStatusError:         true,
	},
	db.SyncStatusPendingDelete: {
		db.SyncStatusSynced: true, // delete confirmed upstream; record removed
		db.SyncStatusError:  true,
	},
	db.SyncStatusError: {
		db.SyncStatusSynced:        true, // successful retry
		db.SyncStatusError:         true, // retry failed again
		db.SyncStatusPendingUpdate: true, // explicit user edit
		db.SyncStatusPendingDelete: true, // explicit user delete
	},
}

// CanTransition reports whether moving a record from one sync status to
// another is legal.
func CanTransition(from, to db.SyncStatus) bool {
	return legalTransitions[from][to]
}

// NewLocalEvent initialises a locally authored event: source local, status
// pending_create, with the given locally generated external id.
func NewLocalEvent(event *db.CalendarEvent, localID string) {
	event.Source = db.SourceLocal
	event.ExternalID = localID
	event.SyncStatus = db.SyncStatusPendingCreate
	event.PendingIntent = ""
	event.SyncError = ""
}

// MarkLocalEdit transitions a record after a local edit. A record that has
// never been pushed stays pending_create; anything else becomes
// pending_update. Editing an errored record is an explicit user action and
// supersedes the failed operation.
func MarkLocalEdit(event *db.CalendarEvent) error {
	switch event.SyncStatus {
	case db.SyncStatusPendingCreate:
		return nil
	case db.SyncStatusSynced, db.SyncStatusPendingUpdate, db.SyncStatusError:
		event.SyncStatus = db.SyncStatusPendingUpdate
		event.PendingIntent = ""
		event.SyncError = ""
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, event.SyncStatus, db.SyncStatusPendingUpdate)
	}
}

// MarkLocalDelete transitions a record after a local deletion request.
// Returns removeNow = true when the record was never pushed upstream
// (pending_create), in which case the caller should hard-delete it instead
// of queueing a pending_delete.
func MarkLocalDelete(event *db.CalendarEvent) (removeNow bool, err error) {
	switch event.SyncStatus {
	case db.SyncStatusPendingCreate:
		return true, nil
	case db.SyncStatusSynced, db.SyncStatusPendingUpdate, db.SyncStatusError:
		event.SyncStatus = db.SyncStatusPendingDelete
		event.PendingIntent = ""
		event.SyncError = ""
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, event.SyncStatus, db.SyncStatusPendingDelete)
	}
}

// MarkSyncedInbound applies a successful inbound reconciliation to a record:
// status synced, sync timestamp refreshed, any stale error cleared.
func MarkSyncedInbound(event *db.CalendarEvent, now time.Time) {
	event.SyncStatus = db.SyncStatusSynced
	event.PendingIntent = ""
	event.SyncError = ""
	event.LastSyncedAt = &now
}

// MarkPushSucceeded applies a successful outbound push. For creates the
// source may have assigned a new external id.
func MarkPushSucceeded(event *db.CalendarEvent, externalID string, now time.Time) {
	if externalID != "" {
		event.ExternalID = externalID
	}
	event.SyncStatus = db.SyncStatusSynced
	event.PendingIntent = ""
	event.SyncError = ""
	event.LastSyncedAt = &now
}

// MarkPushFailed records a failed outbound push. The record moves to error
// but remembers which pending operation it was attempting, so a retry
// re-runs the same operation rather than guessing.
func MarkPushFailed(event *db.CalendarEvent, pushErr error) {
	if event.SyncStatus.IsPending() {
		event.PendingIntent = event.SyncStatus
	}
	event.SyncStatus = db.SyncStatusError
	event.SyncError = pushErr.Error()
}

// RetryIntent returns the pending operation an errored record should
// re-attempt. Only records in the error state are retryable.
func RetryIntent(event *db.CalendarEvent) (db.SyncStatus, error) {
	if event.SyncStatus != db.SyncStatusError {
		return "", fmt.Errorf("%w: status is %s", ErrNotRetryable, event.SyncStatus)
	}
	if !event.PendingIntent.IsPending() {
		return "", fmt.Errorf("%w: no recorded pending intent", ErrNotRetryable)
	}
	return event.PendingIntent, nil
}
