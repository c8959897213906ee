package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/sagebrook/practicesync/internal/db"
)

func orchestratorFixture(fetcher Fetcher) (*Orchestrator, *mockStore) {
	store := newMockStore()
	registry := newMockRegistry()
	if fetcher != nil {
		registry.fetchers[db.SourceGoogle] = fetcher
	}
	logger := testLogger()
	reconciler := NewReconciler(store, logger)
	links := NewLinkResolver(store, store, logger)
	return NewOrchestrator(store, store, registry, reconciler, links, logger), store
}

func TestRunSyncHappyPath(t *testing.T) {
	fetcher := &mockFetcher{events: []SourceEvent{
		sourceEvent("ext-1", "Session A"),
		sourceEvent("ext-2", "Session B"),
	}}
	orch, store := orchestratorFixture(fetcher)

	report, err := orch.RunSync(context.Background(), "owner-1", db.SourceGoogle)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !report.Success {
		t.Fatalf("expected success: %+v", report)
	}
	if report.Report.Created != 2 {
		t.Errorf("expected 2 created, got %d", report.Report.Created)
	}
	if store.count() != 2 {
		t.Errorf("expected 2 stored events, got %d", store.count())
	}
	if len(store.syncLogs) != 1 {
		t.Fatalf("expected a sync log, got %d", len(store.syncLogs))
	}
	if !store.syncLogs[0].Success {
		t.Error("expected sync log to record success")
	}
}

func TestRunSyncFetchFailureLeavesStoreUntouched(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("caldav timeout")}
	orch, store := orchestratorFixture(fetcher)
	store.seed(
		syncedEvent("owner-1", "precious-1", db.SourceGoogle),
		syncedEvent("owner-1", "precious-2", db.SourceGoogle),
	)

	report, err := orch.RunSync(context.Background(), "owner-1", db.SourceGoogle)
	if err != nil {
		t.Fatalf("a fetch failure is a reported outcome, not a run error: %v", err)
	}

	if report.Success {
		t.Error("expected failure to be reported")
	}
	if report.FetchError == "" {
		t.Error("expected fetch error to be surfaced")
	}
	// The critical property: nothing was interpreted as a deletion.
	if store.count() != 2 {
		t.Fatalf("fetch failure modified the store: %d events remain", store.count())
	}
	if len(store.syncLogs) != 1 || store.syncLogs[0].Success {
		t.Error("expected a failed sync log entry")
	}
}

func TestRunSyncRejectsLocalSource(t *testing.T) {
	orch, _ := orchestratorFixture(nil)
	if _, err := orch.RunSync(context.Background(), "owner-1", db.SourceLocal); err == nil {
		t.Fatal("expected local source to be rejected")
	}
}

func TestRunSyncUnknownAdapter(t *testing.T) {
	orch, _ := orchestratorFixture(nil)
	if _, err := orch.RunSync(context.Background(), "owner-1", db.SourceGoogle); err == nil {
		t.Fatal("expected missing adapter to be an error")
	}
}

func TestRunSyncPartialItemFailures(t *testing.T) {
	fetcher := &mockFetcher{events: []SourceEvent{
		sourceEvent("ok", "fine"),
		sourceEvent("poison", "fails"),
	}}
	orch, store := orchestratorFixture(fetcher)
	store.failUpsertFor["poison"] = errors.New("disk full")

	report, err := orch.RunSync(context.Background(), "owner-1", db.SourceGoogle)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !report.Success {
		t.Error("a pass with item errors still completes")
	}
	if len(report.Report.Errors) != 1 {
		t.Errorf("expected 1 item error, got %v", report.Report.Errors)
	}
	if report.Report.Created != 1 {
		t.Errorf("expected the healthy item applied, got %d created", report.Report.Created)
	}
}
