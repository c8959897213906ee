package activity

import (
	"sync"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

// SyncActivity represents the current state of a sync pass for one
// owner/source pair.
type SyncActivity struct {
	OwnerID       string         `json:"owner_id"`
	Source        db.EventSource `json:"source"`
	Status        string         `json:"status"` // "running", "completed", "partial", "error"
	EventsCreated int            `json:"events_created"`
	EventsUpdated int            `json:"events_updated"`
	EventsDeleted int            `json:"events_deleted"`
	EventsSkipped int            `json:"events_skipped"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Duration      string         `json:"duration,omitempty"`
	Message       string         `json:"message,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
}

type key struct {
	owner  string
	source db.EventSource
}

// Tracker tracks sync activity across all owners and sources.
type Tracker struct {
	mu             sync.RWMutex
	active         map[key]*SyncActivity
	recent         []*SyncActivity
	maxRecentSyncs int
}

// NewTracker creates a new activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:         make(map[key]*SyncActivity),
		recent:         make([]*SyncActivity, 0),
		maxRecentSyncs: 20, // Keep last 20 completed syncs
	}
}

// StartSync begins tracking a new sync pass.
func (t *Tracker) StartSync(ownerID string, source db.EventSource) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[key{ownerID, source}] = &SyncActivity{
		OwnerID:   ownerID,
		Source:    source,
		Status:    "running",
		StartedAt: time.Now(),
	}
}

// FinishSync marks a sync pass as completed and moves it to recent.
func (t *Tracker) FinishSync(ownerID string, source db.EventSource, success bool, message string, created, updated, deleted, skipped int, errors []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{ownerID, source}
	act, exists := t.active[k]
	if !exists {
		return
	}

	now := time.Now()
	act.CompletedAt = &now
	act.Duration = now.Sub(act.StartedAt).Round(time.Millisecond).String()
	act.Message = message
	act.Errors = errors
	act.EventsCreated = created
	act.EventsUpdated = updated
	act.EventsDeleted = deleted
	act.EventsSkipped = skipped

	if success {
		if len(errors) > 0 {
			act.Status = "partial"
		} else {
			act.Status = "completed"
		}
	} else {
		act.Status = "error"
	}

	t.recent = append([]*SyncActivity{act}, t.recent...)
	if len(t.recent) > t.maxRecentSyncs {
		t.recent = t.recent[:t.maxRecentSyncs]
	}

	delete(t.active, k)
}

// GetActive returns all currently running syncs.
func (t *Tracker) GetActive() []*SyncActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*SyncActivity, 0, len(t.active))
	for _, act := range t.active {
		// Copy to avoid races with the writer.
		c := *act
		c.Duration = time.Since(act.StartedAt).Round(time.Millisecond).String()
		result = append(result, &c)
	}
	return result
}

// GetRecent returns recently completed syncs, newest first.
func (t *Tracker) GetRecent() []*SyncActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*SyncActivity, len(t.recent))
	for i, act := range t.recent {
		c := *act
		result[i] = &c
	}
	return result
}

// IsSyncing returns true if the given owner/source pair is currently syncing.
func (t *Tracker) IsSyncing(ownerID string, source db.EventSource) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.active[key{ownerID, source}]
	return exists
}
