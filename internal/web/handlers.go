package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sagebrook/practicesync/internal/activity"
	"github.com/sagebrook/practicesync/internal/config"
	"github.com/sagebrook/practicesync/internal/db"
	"github.com/sagebrook/practicesync/internal/scheduler"
	enginesync "github.com/sagebrook/practicesync/internal/sync"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	queue     *enginesync.OutboundQueue
	scheduler *scheduler.Scheduler
	tracker   *activity.Tracker
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	cfg *config.Config,
	database *db.DB,
	queue *enginesync.OutboundQueue,
	sched *scheduler.Scheduler,
	tracker *activity.Tracker,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        database,
		queue:     queue,
		scheduler: sched,
		tracker:   tracker,
	}
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks that the database is reachable.
func (h *Handlers) Readiness(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Activity returns the currently running and recently completed sync passes.
func (h *Handlers) Activity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active": h.tracker.GetActive(),
		"recent": h.tracker.GetRecent(),
	})
}
