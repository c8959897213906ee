package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

// Report aggregates the outcome of a single reconcile pass.
type Report struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Reconciler applies a full source snapshot to the store for one owner.
// It is stateless between calls; all persistent state lives in the
// [EventStore].
type Reconciler struct {
	store EventStore
	log   *slog.Logger
}

// NewReconciler creates a Reconciler backed by the given store.
func NewReconciler(store EventStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: logger}
}

// Reconcile diffs incoming against the stored events for (ownerID, source)
// and applies the result: events present in both are overwritten and marked
// synced, events only in incoming are created, and events only in the store
// are deleted.
//
// incoming must be the complete current state of the source for this owner
// (a full snapshot, never a delta): absence from the batch is interpreted as
// deletion upstream. Callers own the guarantee that a failed or partial
// fetch never reaches this method.
//
// Each item is applied in isolation; a failed write is recorded in
// Report.Errors and the pass continues. Re-running the same input is a
// no-op, so retrying a partially applied pass is always safe.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID string, source db.EventSource, incoming []SourceEvent) (Report, error) {
	report := Report{Errors: make([]string, 0)}

	if source == db.SourceLocal {
		return report, fmt.Errorf("source %q is not subject to inbound reconciliation", source)
	}
	if !source.IsValid() {
		return report, fmt.Errorf("unknown event source %q", source)
	}

	// Phase 1: load the existing snapshot. The delete set below is computed
	// from this same snapshot, never re-queried, so an event updated during
	// this pass cannot also be deleted by it.
	existing, err := r.store.FindEventsByOwnerAndSource(ctx, ownerID, source)
	if err != nil {
		return report, fmt.Errorf("loading existing events for %s/%s: %w", ownerID, source, err)
	}

	existingByExternalID := make(map[string]*db.CalendarEvent, len(existing))
	for _, ev := range existing {
		existingByExternalID[ev.ExternalID] = ev
	}

	incomingIDs := make(map[string]bool, len(incoming))
	now := time.Now().UTC()

	// Phase 2: upsert everything present in the snapshot.
	for i := range incoming {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("pass aborted: %v", err))
			return report, nil
		}

		in := &incoming[i]
		incomingIDs[in.ExternalID] = true

		stored, exists := existingByExternalID[in.ExternalID]
		if !exists {
			stored = &db.CalendarEvent{
				OwnerID:    ownerID,
				ExternalID: in.ExternalID,
				Source:     source,
			}
		}
		applySourceEvent(stored, in)
		MarkSyncedInbound(stored, now)

		if err := r.store.UpsertEvent(ctx, stored); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("event %s: %v", in.ExternalID, err))
			continue
		}
		if exists {
			report.Updated++
		} else {
			report.Created++
		}
	}

	// Phase 3: delete what the source no longer has. Records carrying
	// unpushed local changes are skipped so an inbound pass never destroys
	// a pending edit; they surface in Report.Skipped instead.
	for _, ev := range existing {
		if incomingIDs[ev.ExternalID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("pass aborted: %v", err))
			return report, nil
		}
		if ev.SyncStatus != db.SyncStatusSynced {
			r.log.Debug("skipping deletion of non-synced event",
				"owner", ownerID, "source", source,
				"external_id", ev.ExternalID, "status", ev.SyncStatus)
			report.Skipped++
			continue
		}
		if err := r.store.DeleteEvent(ctx, ev.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("event %s: %v", ev.ExternalID, err))
			continue
		}
		report.Deleted++
	}

	r.log.Info("reconcile complete",
		"owner", ownerID,
		"source", source,
		"created", report.Created,
		"updated", report.Updated,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)

	return report, nil
}

// applySourceEvent overwrites the mutable descriptive fields of a stored
// event from the freshest source payload. Link fields are left alone; the
// resolver owns those.
func applySourceEvent(stored *db.CalendarEvent, in *SourceEvent) {
	stored.Title = in.Title
	stored.Description = in.Description
	stored.Location = in.Location
	stored.StartTime = in.StartTime
	stored.EndTime = in.EndTime
	stored.AllDay = in.AllDay
	stored.Attendees = in.Attendees
	stored.RecurrenceID = in.RecurrenceID
	stored.RawData = in.RawData
}
