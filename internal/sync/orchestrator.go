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

// SyncReport is the result of one full sync pass for an owner/source.
type SyncReport struct {
	OwnerID    string        `json:"owner_id"`
	Source     db.EventSource `json:"source"`
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	FetchError string        `json:"fetch_error,omitempty"`
	Report     Report        `json:"report"`
	Linked     int           `json:"linked"`
	Duration   time.Duration `json:"duration"`
}

// Orchestrator drives a full sync pass per source: fetch, reconcile, link,
// report. The fetch guard is structural: reconciliation only runs when the
// fetch succeeded in full, so a failed fetch can never masquerade as an
// empty batch and wipe the owner's events.
type Orchestrator struct {
	store      EventStore
	reports    ReportStore
	adapters   AdapterRegistry
	reconciler *Reconciler
	links      *LinkResolver
	log        *slog.Logger

	passCounter  metric.Int64Counter
	eventCounter metric.Int64Counter
}

// NewOrchestrator creates an Orchestrator wired to the given collaborators.
func NewOrchestrator(store EventStore, reports ReportStore, adapters AdapterRegistry, reconciler *Reconciler, links *LinkResolver, logger *slog.Logger) *Orchestrator {
	meter := otel.Meter("github.com/sagebrook/practicesync/internal/sync")
	passCounter, _ := meter.Int64Counter("practicesync.sync.passes",
		metric.WithDescription("Completed sync passes by outcome"))
	eventCounter, _ := meter.Int64Counter("practicesync.sync.events",
		metric.WithDescription("Events touched by reconciliation, by operation"))

	return &Orchestrator{
		store:        store,
		reports:      reports,
		adapters:     adapters,
		reconciler:   reconciler,
		links:        links,
		log:          logger,
		passCounter:  passCounter,
		eventCounter: eventCounter,
	}
}

// RunSync performs one inbound sync pass for (ownerID, source). The pass is
// all-or-nothing at the fetch boundary: any fetch error leaves the store
// untouched. Past that boundary, per-item failures are aggregated into the
// report without failing the pass.
func (o *Orchestrator) RunSync(ctx context.Context, ownerID string, source db.EventSource) (*SyncReport, error) {
	start := time.Now()
	report := &SyncReport{OwnerID: ownerID, Source: source}

	if source == db.SourceLocal {
		return report, fmt.Errorf("source %q has no inbound sync", source)
	}

	fetcher, err := o.adapters.Fetcher(source)
	if err != nil {
		return report, err
	}

	incoming, err := fetcher.FetchEvents(ctx, ownerID)
	if err != nil {
		// The fetch failed or was partial; reconciling now would interpret
		// the missing events as upstream deletions.
		report.FetchError = err.Error()
		report.Message = "fetch failed; no events were modified"
		report.Duration = time.Since(start)
		o.finishPass(ctx, report, "fetch_failed")
		return report, nil
	}

	rec, err := o.reconciler.Reconcile(ctx, ownerID, source, incoming)
	if err != nil {
		report.Message = "reconciliation rejected"
		report.Duration = time.Since(start)
		o.finishPass(ctx, report, "rejected")
		return report, err
	}
	report.Report = rec

	report.Linked = o.links.ResolveOwner(ctx, ownerID, source)

	// A pass with item errors still completed: the fetch succeeded and
	// every other item was applied. The errors ride along for retry on the
	// next pass.
	report.Success = true
	if len(rec.Errors) == 0 {
		report.Message = fmt.Sprintf("synced %d events: %d created, %d updated, %d deleted",
			len(incoming), rec.Created, rec.Updated, rec.Deleted)
	} else {
		report.Message = fmt.Sprintf("sync completed with %d errors", len(rec.Errors))
	}
	report.Duration = time.Since(start)

	outcome := "success"
	if len(rec.Errors) > 0 {
		outcome = "partial"
	}
	o.finishPass(ctx, report, outcome)

	return report, nil
}

// finishPass writes the sync log row and bumps metrics. Log-write failures
// are logged, not propagated; the pass outcome stands regardless.
func (o *Orchestrator) finishPass(ctx context.Context, report *SyncReport, outcome string) {
	attrs := metric.WithAttributes(
		attribute.String("source", string(report.Source)),
		attribute.String("outcome", outcome),
	)
	o.passCounter.Add(ctx, 1, attrs)
	o.eventCounter.Add(ctx, int64(report.Report.Created), metric.WithAttributes(attribute.String("op", "create")))
	o.eventCounter.Add(ctx, int64(report.Report.Updated), metric.WithAttributes(attribute.String("op", "update")))
	o.eventCounter.Add(ctx, int64(report.Report.Deleted), metric.WithAttributes(attribute.String("op", "delete")))

	syncLog := &db.SyncLog{
		OwnerID:       report.OwnerID,
		Source:        report.Source,
		Success:       report.Success,
		Message:       report.Message,
		EventsCreated: report.Report.Created,
		EventsUpdated: report.Report.Updated,
		EventsDeleted: report.Report.Deleted,
		EventsSkipped: report.Report.Skipped,
		ErrorCount:    len(report.Report.Errors),
		Duration:      report.Duration,
	}
	if err := o.reports.CreateSyncLog(ctx, syncLog); err != nil {
		o.log.Error("failed to write sync log", "owner", report.OwnerID, "source", report.Source, "error", err)
	}
}
