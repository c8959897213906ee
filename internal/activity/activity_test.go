package activity

import (
	"testing"

	"github.com/sagebrook/practicesync/internal/db"
)

func TestTrackerLifecycle(t *testing.T) {
	tracker := NewTracker()

	tracker.StartSync("owner-1", db.SourceGoogle)

	if !tracker.IsSyncing("owner-1", db.SourceGoogle) {
		t.Fatal("expected owner-1/google to be syncing")
	}
	if tracker.IsSyncing("owner-1", db.SourcePracticeManagement) {
		t.Fatal("other sources must not appear as syncing")
	}

	active := tracker.GetActive()
	if len(active) != 1 || active[0].Status != "running" {
		t.Fatalf("unexpected active list: %+v", active)
	}

	tracker.FinishSync("owner-1", db.SourceGoogle, true, "ok", 3, 1, 2, 0, nil)

	if tracker.IsSyncing("owner-1", db.SourceGoogle) {
		t.Error("sync should no longer be active")
	}

	recent := tracker.GetRecent()
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent entry, got %d", len(recent))
	}
	entry := recent[0]
	if entry.Status != "completed" {
		t.Errorf("expected completed, got %s", entry.Status)
	}
	if entry.EventsCreated != 3 || entry.EventsUpdated != 1 || entry.EventsDeleted != 2 {
		t.Errorf("counts did not carry over: %+v", entry)
	}
	if entry.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
}

func TestTrackerStatuses(t *testing.T) {
	tracker := NewTracker()

	tracker.StartSync("owner-1", db.SourceGoogle)
	tracker.FinishSync("owner-1", db.SourceGoogle, true, "partial", 1, 0, 0, 0, []string{"event x failed"})

	tracker.StartSync("owner-1", db.SourcePracticeManagement)
	tracker.FinishSync("owner-1", db.SourcePracticeManagement, false, "fetch failed", 0, 0, 0, 0, nil)

	recent := tracker.GetRecent()
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent entries, got %d", len(recent))
	}
	// Newest first
	if recent[0].Status != "error" {
		t.Errorf("expected newest entry to be error, got %s", recent[0].Status)
	}
	if recent[1].Status != "partial" {
		t.Errorf("expected older entry to be partial, got %s", recent[1].Status)
	}
}

func TestTrackerRecentBounded(t *testing.T) {
	tracker := NewTracker()
	tracker.maxRecentSyncs = 3

	for i := 0; i < 5; i++ {
		tracker.StartSync("owner-1", db.SourceGoogle)
		tracker.FinishSync("owner-1", db.SourceGoogle, true, "ok", i, 0, 0, 0, nil)
	}

	recent := tracker.GetRecent()
	if len(recent) != 3 {
		t.Fatalf("expected recent list capped at 3, got %d", len(recent))
	}
	if recent[0].EventsCreated != 4 {
		t.Errorf("expected newest first, got created=%d", recent[0].EventsCreated)
	}
}

func TestFinishWithoutStartIsIgnored(t *testing.T) {
	tracker := NewTracker()
	tracker.FinishSync("owner-1", db.SourceGoogle, true, "ok", 0, 0, 0, 0, nil)
	if len(tracker.GetRecent()) != 0 {
		t.Error("finish without a matching start must be a no-op")
	}
}
