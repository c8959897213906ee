package sync

import (
	"context"
	"testing"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

func TestResolveClientByAttendeeEmail(t *testing.T) {
	store := newMockStore()
	store.clients = []*db.Client{
		{ID: "client-1", OwnerID: "owner-1", Name: "Dana Reyes", Email: "dana@example.com"},
		{ID: "client-2", OwnerID: "owner-1", Name: "Sam Okafor", Email: "sam@example.com"},
	}
	lr := NewLinkResolver(store, store, testLogger())

	event := &db.CalendarEvent{
		OwnerID:   "owner-1",
		Title:     "Weekly check-in",
		Attendees: []string{"THERAPIST@example.com", "Dana@Example.com"},
	}

	if !lr.Resolve(context.Background(), event, store.clients) {
		t.Fatal("expected a client match")
	}
	if event.LinkedClientID != "client-1" {
		t.Errorf("expected client-1, got %q", event.LinkedClientID)
	}
}

func TestResolveClientByNameInTitle(t *testing.T) {
	store := newMockStore()
	store.clients = []*db.Client{
		{ID: "client-2", OwnerID: "owner-1", Name: "Sam Okafor", Email: "sam@example.com"},
	}
	lr := NewLinkResolver(store, store, testLogger())

	event := &db.CalendarEvent{OwnerID: "owner-1", Title: "Session with sam okafor"}
	if !lr.Resolve(context.Background(), event, store.clients) {
		t.Fatal("expected a title match")
	}
	if event.LinkedClientID != "client-2" {
		t.Errorf("expected client-2, got %q", event.LinkedClientID)
	}
}

func TestResolveSessionWithinTolerance(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newMockStore()
	store.sessions = []*db.Session{
		{ID: "session-1", OwnerID: "owner-1", ClientID: "client-1", ScheduledAt: scheduled},
		{ID: "session-2", OwnerID: "owner-1", ClientID: "client-2", ScheduledAt: scheduled.Add(10 * time.Minute)},
	}
	lr := NewLinkResolver(store, store, testLogger())

	t.Run("closest session wins", func(t *testing.T) {
		event := &db.CalendarEvent{OwnerID: "owner-1", StartTime: scheduled.Add(2 * time.Minute)}
		if !lr.Resolve(context.Background(), event, nil) {
			t.Fatal("expected a session match")
		}
		if event.LinkedSessionID != "session-1" {
			t.Errorf("expected session-1, got %q", event.LinkedSessionID)
		}
	})

	t.Run("client link narrows the candidates", func(t *testing.T) {
		event := &db.CalendarEvent{
			OwnerID:        "owner-1",
			LinkedClientID: "client-2",
			StartTime:      scheduled.Add(2 * time.Minute),
		}
		if !lr.Resolve(context.Background(), event, nil) {
			t.Fatal("expected a session match")
		}
		if event.LinkedSessionID != "session-2" {
			t.Errorf("expected the linked client's session, got %q", event.LinkedSessionID)
		}
	})

	t.Run("outside tolerance is a miss", func(t *testing.T) {
		event := &db.CalendarEvent{OwnerID: "owner-1", StartTime: scheduled.Add(2 * time.Hour)}
		if lr.Resolve(context.Background(), event, nil) {
			t.Errorf("expected no match, got session %q", event.LinkedSessionID)
		}
	})
}

func TestResolveOwnerPersistsLinks(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newMockStore()
	store.clients = []*db.Client{
		{ID: "client-1", OwnerID: "owner-1", Name: "Dana Reyes", Email: "dana@example.com"},
	}
	store.sessions = []*db.Session{
		{ID: "session-1", OwnerID: "owner-1", ClientID: "client-1", ScheduledAt: scheduled},
	}

	matched := syncedEvent("owner-1", "ext-1", db.SourceGoogle)
	matched.Attendees = []string{"dana@example.com"}
	matched.StartTime = scheduled
	unmatched := syncedEvent("owner-1", "ext-2", db.SourceGoogle)
	unmatched.Title = "Admin block"
	store.seed(matched, unmatched)

	lr := NewLinkResolver(store, store, testLogger())
	resolved := lr.ResolveOwner(context.Background(), "owner-1", db.SourceGoogle)

	if resolved != 1 {
		t.Fatalf("expected 1 event resolved, got %d", resolved)
	}

	stored := store.byNaturalKey(naturalKey{"owner-1", "ext-1", db.SourceGoogle})
	if stored.LinkedClientID != "client-1" || stored.LinkedSessionID != "session-1" {
		t.Errorf("links were not persisted: %+v", stored)
	}

	other := store.byNaturalKey(naturalKey{"owner-1", "ext-2", db.SourceGoogle})
	if other.LinkedClientID != "" || other.LinkedSessionID != "" {
		t.Errorf("unmatched event gained links: %+v", other)
	}
}
