package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sagebrook/practicesync/internal/activity"
	"github.com/sagebrook/practicesync/internal/db"
	enginesync "github.com/sagebrook/practicesync/internal/sync"
)

const (
	cleanupInterval  = 24 * time.Hour
	logRetentionDays = 30
	syncTimeout      = 10 * time.Minute // Maximum time for a single sync pass
	pushTimeout      = 5 * time.Minute
)

// pairKey identifies one (owner, source) sync unit.
type pairKey struct {
	ownerID string
	source  db.EventSource
}

// Job represents a scheduled inbound sync job for one owner/source pair.
type Job struct {
	key      pairKey
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
}

// Scheduler manages background sync and outbound push jobs. A second sync
// for the same (owner, source) started before the first completes is
// skipped, never raced; different pairs run fully in parallel.
type Scheduler struct {
	store        *db.DB
	orchestrator *enginesync.Orchestrator
	queue        *enginesync.OutboundQueue
	tracker      *activity.Tracker

	mu        sync.RWMutex
	jobs      map[pairKey]*Job
	syncLocks map[pairKey]*sync.Mutex // per-pair locks serialize sync passes
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool

	owners       []string
	pushInterval time.Duration
}

// New creates a new scheduler for the given owners.
func New(store *db.DB, orchestrator *enginesync.Orchestrator, queue *enginesync.OutboundQueue, tracker *activity.Tracker, owners []string, pushInterval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:        store,
		orchestrator: orchestrator,
		queue:        queue,
		tracker:      tracker,
		jobs:         make(map[pairKey]*Job),
		syncLocks:    make(map[pairKey]*sync.Mutex),
		ctx:          ctx,
		cancel:       cancel,
		owners:       owners,
		pushInterval: pushInterval,
	}
}

// Start launches an inbound sync job per owner per external source, the
// outbound push loop, and the log cleanup routine.
func (s *Scheduler) Start(syncInterval time.Duration) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	count := 0
	for _, owner := range s.owners {
		for _, source := range db.ExternalSources {
			s.AddJob(owner, source, syncInterval)
			count++
		}
	}

	s.wg.Add(2)
	go s.pushRoutine()
	go s.cleanupRoutine()

	log.Printf("Scheduler started with %d sync jobs", count)
	return nil
}

// Stop gracefully shuts down all jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()

	s.mu.Lock()
	for _, job := range s.jobs {
		close(job.stopCh)
		job.ticker.Stop()
	}
	s.jobs = make(map[pairKey]*Job)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// AddJob adds or replaces a sync job for an owner/source pair.
func (s *Scheduler) AddJob(ownerID string, source db.EventSource, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{ownerID, source}
	if existing, exists := s.jobs[k]; exists {
		close(existing.stopCh)
		existing.ticker.Stop()
	}

	job := &Job{
		key:      k,
		interval: interval,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
	}
	s.jobs[k] = job

	s.wg.Add(1)
	go s.runJob(job)

	log.Printf("Added sync job for %s/%s with interval %v", ownerID, source, interval)
}

// RemoveJob removes a sync job.
func (s *Scheduler) RemoveJob(ownerID string, source db.EventSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{ownerID, source}
	if job, exists := s.jobs[k]; exists {
		close(job.stopCh)
		job.ticker.Stop()
		delete(s.jobs, k)
		log.Printf("Removed sync job for %s/%s", ownerID, source)
	}
}

// TriggerSync manually triggers a sync pass for an owner/source pair.
func (s *Scheduler) TriggerSync(ownerID string, source db.EventSource) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeSync(pairKey{ownerID, source})
	}()
}

// JobCount returns the number of active jobs.
func (s *Scheduler) JobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// runJob runs the sync job loop.
func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	// Run immediately on start
	s.executeSync(job.key)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-job.stopCh:
			return
		case <-job.ticker.C:
			s.executeSync(job.key)
		}
	}
}

// getSyncLock returns the mutex for a pair, creating one if needed.
func (s *Scheduler) getSyncLock(k pairKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, exists := s.syncLocks[k]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.syncLocks[k] = lock
	return lock
}

// executeSync runs one inbound sync pass for a pair.
func (s *Scheduler) executeSync(k pairKey) {
	lock := s.getSyncLock(k)

	// Skip if another pass for the same pair is in progress: two concurrent
	// passes would race on the same natural-key set.
	if !lock.TryLock() {
		log.Printf("Skipping sync for %s/%s - another sync is already in progress", k.ownerID, k.source)
		return
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	s.tracker.StartSync(k.ownerID, k.source)

	report, err := s.orchestrator.RunSync(ctx, k.ownerID, k.source)
	if err != nil {
		log.Printf("Sync rejected for %s/%s: %v", k.ownerID, k.source, err)
		s.tracker.FinishSync(k.ownerID, k.source, false, err.Error(), 0, 0, 0, 0, nil)
		return
	}

	s.tracker.FinishSync(k.ownerID, k.source, report.Success, report.Message,
		report.Report.Created, report.Report.Updated, report.Report.Deleted,
		report.Report.Skipped, report.Report.Errors)

	if report.Success {
		log.Printf("Sync completed for %s/%s: %d created, %d updated, %d deleted in %v",
			k.ownerID, k.source, report.Report.Created, report.Report.Updated,
			report.Report.Deleted, report.Duration)
	} else {
		log.Printf("Sync failed for %s/%s: %s", k.ownerID, k.source, report.Message)
	}
}

// pushRoutine periodically drains every owner's outbound queue.
func (s *Scheduler) pushRoutine() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pushAllOwners()
		}
	}
}

func (s *Scheduler) pushAllOwners() {
	ctx, cancel := context.WithTimeout(s.ctx, pushTimeout)
	defer cancel()

	for _, owner := range s.owners {
		pushed, failed := s.queue.PushAll(ctx, owner)
		if pushed > 0 || failed > 0 {
			log.Printf("Outbound push for %s: %d pushed, %d failed", owner, pushed, failed)
		}
	}
}

// cleanupRoutine runs periodic cleanup of old sync logs.
func (s *Scheduler) cleanupRoutine() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOldLogs()
		}
	}
}

// cleanupOldLogs deletes sync logs older than the retention period.
func (s *Scheduler) cleanupOldLogs() {
	cutoff := time.Now().AddDate(0, 0, -logRetentionDays)

	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	deleted, err := s.store.CleanOldSyncLogs(ctx, cutoff)
	if err != nil {
		log.Printf("Failed to clean old sync logs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Cleaned %d old sync logs", deleted)
	}
}
