package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to db.SyncStatus }{
		{db.SyncStatusSynced, db.SyncStatusPendingUpdate},
		{db.SyncStatusSynced, db.SyncStatusPendingDelete},
		{db.SyncStatusPendingCreate, db.SyncStatusSynced},
		{db.SyncStatusPendingCreate, db.SyncStatusError},
		{db.SyncStatusPendingUpdate, db.SyncStatusPendingDelete},
		{db.SyncStatusPendingDelete, db.SyncStatusError},
		{db.SyncStatusError, db.SyncStatusSynced},
		{db.SyncStatusError, db.SyncStatusPendingUpdate},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to db.SyncStatus }{
		{db.SyncStatusSynced, db.SyncStatusPendingCreate},
		{db.SyncStatusSynced, db.SyncStatusError},
		{db.SyncStatusPendingCreate, db.SyncStatusPendingUpdate},
		{db.SyncStatusPendingDelete, db.SyncStatusPendingUpdate},
		{db.SyncStatusError, db.SyncStatusPendingCreate},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestNewLocalEvent(t *testing.T) {
	event := &db.CalendarEvent{OwnerID: "owner-1", Title: "Intake call"}
	NewLocalEvent(event, "local-123")

	if event.Source != db.SourceLocal {
		t.Errorf("expected local source, got %s", event.Source)
	}
	if event.ExternalID != "local-123" {
		t.Errorf("expected local external id, got %q", event.ExternalID)
	}
	if event.SyncStatus != db.SyncStatusPendingCreate {
		t.Errorf("expected pending_create, got %s", event.SyncStatus)
	}
}

func TestMarkLocalEdit(t *testing.T) {
	t.Run("pending_create stays pending_create", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingCreate}
		if err := MarkLocalEdit(event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.SyncStatus != db.SyncStatusPendingCreate {
			t.Errorf("expected pending_create, got %s", event.SyncStatus)
		}
	})

	t.Run("synced becomes pending_update", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusSynced}
		if err := MarkLocalEdit(event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.SyncStatus != db.SyncStatusPendingUpdate {
			t.Errorf("expected pending_update, got %s", event.SyncStatus)
		}
	})

	t.Run("editing an errored record clears the failure", func(t *testing.T) {
		event := &db.CalendarEvent{
			SyncStatus:    db.SyncStatusError,
			PendingIntent: db.SyncStatusPendingCreate,
			SyncError:     "boom",
		}
		if err := MarkLocalEdit(event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.SyncStatus != db.SyncStatusPendingUpdate {
			t.Errorf("expected pending_update, got %s", event.SyncStatus)
		}
		if event.PendingIntent != "" || event.SyncError != "" {
			t.Errorf("expected error bookkeeping cleared: %+v", event)
		}
	})

	t.Run("pending_delete cannot be edited", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingDelete}
		if err := MarkLocalEdit(event); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
	})
}

func TestMarkLocalDelete(t *testing.T) {
	t.Run("never-pushed record is removed immediately", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingCreate}
		removeNow, err := MarkLocalDelete(event)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !removeNow {
			t.Error("expected removeNow for a pending_create record")
		}
	})

	t.Run("synced record queues pending_delete", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusSynced}
		removeNow, err := MarkLocalDelete(event)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if removeNow {
			t.Error("expected a queued deletion, not an immediate removal")
		}
		if event.SyncStatus != db.SyncStatusPendingDelete {
			t.Errorf("expected pending_delete, got %s", event.SyncStatus)
		}
	})

	t.Run("already deleting is illegal", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingDelete}
		if _, err := MarkLocalDelete(event); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
	})
}

func TestMarkPushFailedAndRetryIntent(t *testing.T) {
	event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingUpdate}
	MarkPushFailed(event, errors.New("upstream 503"))

	if event.SyncStatus != db.SyncStatusError {
		t.Fatalf("expected error status, got %s", event.SyncStatus)
	}
	if event.PendingIntent != db.SyncStatusPendingUpdate {
		t.Fatalf("expected the attempted operation to be remembered, got %q", event.PendingIntent)
	}
	if event.SyncError == "" {
		t.Fatal("expected sync_error to be populated")
	}

	intent, err := RetryIntent(event)
	if err != nil {
		t.Fatalf("expected retryable event: %v", err)
	}
	if intent != db.SyncStatusPendingUpdate {
		t.Errorf("expected pending_update intent, got %s", intent)
	}
}

func TestRetryIntentRejections(t *testing.T) {
	t.Run("non-errored record", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusSynced}
		if _, err := RetryIntent(event); !errors.Is(err, ErrNotRetryable) {
			t.Fatalf("expected ErrNotRetryable, got %v", err)
		}
	})

	t.Run("errored record without intent", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusError}
		if _, err := RetryIntent(event); !errors.Is(err, ErrNotRetryable) {
			t.Fatalf("expected ErrNotRetryable, got %v", err)
		}
	})
}

func TestMarkSyncedInbound(t *testing.T) {
	now := time.Now().UTC()
	event := &db.CalendarEvent{
		SyncStatus:    db.SyncStatusError,
		PendingIntent: db.SyncStatusPendingUpdate,
		SyncError:     "stale",
	}
	MarkSyncedInbound(event, now)

	if event.SyncStatus != db.SyncStatusSynced {
		t.Errorf("expected synced, got %s", event.SyncStatus)
	}
	if event.SyncError != "" || event.PendingIntent != "" {
		t.Errorf("expected error bookkeeping cleared: %+v", event)
	}
	if event.LastSyncedAt == nil || !event.LastSyncedAt.Equal(now) {
		t.Errorf("expected last_synced_at %v, got %v", now, event.LastSyncedAt)
	}
}

func TestMarkPushSucceeded(t *testing.T) {
	now := time.Now().UTC()

	t.Run("create adopts the upstream id", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingCreate, ExternalID: "local-1"}
		MarkPushSucceeded(event, "upstream-9", now)
		if event.ExternalID != "upstream-9" {
			t.Errorf("expected upstream id, got %q", event.ExternalID)
		}
		if event.SyncStatus != db.SyncStatusSynced {
			t.Errorf("expected synced, got %s", event.SyncStatus)
		}
	})

	t.Run("update keeps the existing id", func(t *testing.T) {
		event := &db.CalendarEvent{SyncStatus: db.SyncStatusPendingUpdate, ExternalID: "ext-1"}
		MarkPushSucceeded(event, "", now)
		if event.ExternalID != "ext-1" {
			t.Errorf("expected id unchanged, got %q", event.ExternalID)
		}
	})
}
