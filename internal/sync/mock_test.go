package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/sagebrook/practicesync/internal/db"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock Event Store --------------------------------------------------------

type naturalKey struct {
	owner      string
	externalID string
	source     db.EventSource
}

type mockStore struct {
	mu     stdsync.Mutex
	events map[string]*db.CalendarEvent // id → event

	clients  []*db.Client
	sessions []*db.Session
	syncLogs []*db.SyncLog

	// failUpsertFor injects a write failure for specific external ids.
	failUpsertFor map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		events:        make(map[string]*db.CalendarEvent),
		failUpsertFor: make(map[string]error),
	}
}

func (m *mockStore) seed(events ...*db.CalendarEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if ev.UpdatedAt.IsZero() {
			ev.UpdatedAt = time.Now().UTC()
		}
		cp := *ev
		m.events[ev.ID] = &cp
	}
}

func (m *mockStore) FindEventsByOwnerAndSource(_ context.Context, ownerID string, source db.EventSource) ([]*db.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*db.CalendarEvent
	for _, ev := range m.events {
		if ev.OwnerID == ownerID && ev.Source == source {
			cp := *ev
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockStore) FindEventByNaturalKey(_ context.Context, ownerID, externalID string, source db.EventSource) (*db.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.OwnerID == ownerID && ev.ExternalID == externalID && ev.Source == source {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) FindEventByID(_ context.Context, id string) (*db.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *mockStore) UpsertEvent(_ context.Context, event *db.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failUpsertFor[event.ExternalID]; ok {
		return err
	}

	event.UpdatedAt = time.Now().UTC()
	for _, existing := range m.events {
		if existing.OwnerID == event.OwnerID && existing.ExternalID == event.ExternalID && existing.Source == event.Source {
			event.ID = existing.ID
			cp := *event
			m.events[existing.ID] = &cp
			return nil
		}
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *mockStore) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *mockStore) FindPendingEventsByOwner(_ context.Context, ownerID string) ([]*db.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*db.CalendarEvent
	for _, ev := range m.events {
		if ev.OwnerID == ownerID && ev.SyncStatus.IsPending() {
			cp := *ev
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockStore) GetClientsByOwner(_ context.Context, ownerID string) ([]*db.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*db.Client
	for _, c := range m.clients {
		if c.OwnerID == ownerID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockStore) FindSessionsInWindow(_ context.Context, ownerID string, from, to time.Time) ([]*db.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*db.Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && !s.ScheduledAt.Before(from) && !s.ScheduledAt.After(to) {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockStore) CreateSyncLog(_ context.Context, log *db.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	m.syncLogs = append(m.syncLogs, &cp)
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockStore) byNaturalKey(k naturalKey) *db.CalendarEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.OwnerID == k.owner && ev.ExternalID == k.externalID && ev.Source == k.source {
			cp := *ev
			return &cp
		}
	}
	return nil
}

// --- Mock Fetcher / Pusher ---------------------------------------------------

type mockFetcher struct {
	events []SourceEvent
	err    error
	calls  int
}

func (f *mockFetcher) FetchEvents(_ context.Context, _ string) ([]SourceEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type mockPusher struct {
	mu      stdsync.Mutex
	creates []string
	updates []string
	deletes []string

	createErr error
	updateErr error
	deleteErr error
}

func (p *mockPusher) PushCreate(_ context.Context, event *db.CalendarEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	externalID := fmt.Sprintf("upstream-%d", len(p.creates)+1)
	p.creates = append(p.creates, event.ID)
	return externalID, nil
}

func (p *mockPusher) PushUpdate(_ context.Context, event *db.CalendarEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updates = append(p.updates, event.ID)
	return nil
}

func (p *mockPusher) PushDelete(_ context.Context, event *db.CalendarEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deletes = append(p.deletes, event.ID)
	return nil
}

// --- Mock Adapter Registry ---------------------------------------------------

type mockRegistry struct {
	fetchers map[db.EventSource]Fetcher
	pushers  map[db.EventSource]Pusher
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		fetchers: make(map[db.EventSource]Fetcher),
		pushers:  make(map[db.EventSource]Pusher),
	}
}

func (r *mockRegistry) Fetcher(source db.EventSource) (Fetcher, error) {
	f, ok := r.fetchers[source]
	if !ok {
		return nil, fmt.Errorf("no fetcher for %s", source)
	}
	return f, nil
}

func (r *mockRegistry) Pusher(source db.EventSource) (Pusher, error) {
	p, ok := r.pushers[source]
	if !ok {
		return nil, fmt.Errorf("no pusher for %s", source)
	}
	return p, nil
}
