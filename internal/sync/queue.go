package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sagebrook/practicesync/internal/db"
)

// OutboundQueue surfaces locally originated or locally modified events that
// have not yet been propagated to their external source. It is a read-only
// projection over the store plus the push dispatch; it holds no state of its
// own.
type OutboundQueue struct {
	store    EventStore
	adapters AdapterRegistry
	log      *slog.Logger

	failCounter metric.Int64Counter
}

// NewOutboundQueue creates an OutboundQueue.
func NewOutboundQueue(store EventStore, adapters AdapterRegistry, logger *slog.Logger) *OutboundQueue {
	meter := otel.Meter("github.com/sagebrook/practicesync/internal/sync")
	failCounter, _ := meter.Int64Counter("practicesync.push.failures",
		metric.WithDescription("Outbound pushes that ended in the error state"))
	return &OutboundQueue{store: store, adapters: adapters, log: logger, failCounter: failCounter}
}

// ListPending returns all records in pending_create, pending_update, or
// pending_delete for the owner, oldest first.
func (q *OutboundQueue) ListPending(ctx context.Context, ownerID string) ([]*db.CalendarEvent, error) {
	return q.store.FindPendingEventsByOwner(ctx, ownerID)
}

// Push propagates one pending event to its external source and records the
// outcome on the event. On success the record becomes synced (with the
// source-assigned external id for creates, and a hard delete for confirmed
// deletions); on failure it moves to error, remembering the attempted
// operation for retry. The returned error reflects the push outcome.
func (q *OutboundQueue) Push(ctx context.Context, event *db.CalendarEvent) error {
	if !event.SyncStatus.IsPending() {
		return fmt.Errorf("event %s is not pending (status %s)", event.ID, event.SyncStatus)
	}
	return q.push(ctx, event, event.SyncStatus)
}

// Retry re-attempts the operation a previously failed push was performing.
// Only events in the error state with a recorded intent are retryable.
func (q *OutboundQueue) Retry(ctx context.Context, eventID string) error {
	event, err := q.store.FindEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	intent, err := RetryIntent(event)
	if err != nil {
		return err
	}
	return q.push(ctx, event, intent)
}

// PushAll drains the owner's pending queue, oldest first. Individual push
// failures are recorded on the events and counted; they do not stop the
// drain.
func (q *OutboundQueue) PushAll(ctx context.Context, ownerID string) (pushed, failed int) {
	pending, err := q.ListPending(ctx, ownerID)
	if err != nil {
		q.log.Error("listing pending events failed", "owner", ownerID, "error", err)
		return 0, 0
	}

	for _, event := range pending {
		if ctx.Err() != nil {
			return pushed, failed
		}
		if err := q.Push(ctx, event); err != nil {
			failed++
			continue
		}
		pushed++
	}
	return pushed, failed
}

func (q *OutboundQueue) push(ctx context.Context, event *db.CalendarEvent, op db.SyncStatus) error {
	// Local events have no upstream; their system of record is this store.
	// They complete their lifecycle without an external round trip.
	if event.Source == db.SourceLocal {
		return q.completeLocal(ctx, event, op)
	}

	pusher, err := q.adapters.Pusher(event.Source)
	if err != nil {
		return q.recordFailure(ctx, event, err)
	}

	now := time.Now().UTC()

	switch op {
	case db.SyncStatusPendingCreate:
		externalID, err := pusher.PushCreate(ctx, event)
		if err != nil {
			return q.recordFailure(ctx, event, err)
		}
		MarkPushSucceeded(event, externalID, now)
		return q.store.UpsertEvent(ctx, event)

	case db.SyncStatusPendingUpdate:
		if err := pusher.PushUpdate(ctx, event); err != nil {
			return q.recordFailure(ctx, event, err)
		}
		MarkPushSucceeded(event, "", now)
		return q.store.UpsertEvent(ctx, event)

	case db.SyncStatusPendingDelete:
		if err := pusher.PushDelete(ctx, event); err != nil {
			return q.recordFailure(ctx, event, err)
		}
		// Confirmed upstream: the store stops remembering it existed.
		return q.store.DeleteEvent(ctx, event.ID)

	default:
		return fmt.Errorf("event %s: unexpected push operation %s", event.ID, op)
	}
}

// completeLocal finishes the lifecycle of a local-source record.
func (q *OutboundQueue) completeLocal(ctx context.Context, event *db.CalendarEvent, op db.SyncStatus) error {
	if op == db.SyncStatusPendingDelete {
		return q.store.DeleteEvent(ctx, event.ID)
	}
	MarkPushSucceeded(event, "", time.Now().UTC())
	return q.store.UpsertEvent(ctx, event)
}

// recordFailure persists the error state and returns the push error so the
// caller sees the failure.
func (q *OutboundQueue) recordFailure(ctx context.Context, event *db.CalendarEvent, pushErr error) error {
	q.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(event.Source))))
	MarkPushFailed(event, pushErr)
	if err := q.store.UpsertEvent(ctx, event); err != nil {
		q.log.Error("failed to record push failure", "event", event.ID, "error", err)
	}
	q.log.Warn("outbound push failed",
		"event", event.ID,
		"owner", event.OwnerID,
		"source", event.Source,
		"error", pushErr,
	)
	return pushErr
}
