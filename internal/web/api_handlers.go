package web

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sagebrook/practicesync/internal/db"
	enginesync "github.com/sagebrook/practicesync/internal/sync"
)

// sanitizeError returns a user-safe error message without exposing internal details.
// Internal error details are logged but not returned to the client.
func sanitizeError(err error, userMessage string) string {
	if err != nil {
		// Log the full error for debugging (server-side only)
		log.Printf("Error: %s - Details: %v", userMessage, err)
	}
	return userMessage
}

// eventRequest is the request body for creating or editing an event through
// the API. Descriptive fields only: sync lifecycle fields are owned by the
// engine and cannot be set from outside.
type eventRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	AllDay          bool      `json:"all_day"`
	Attendees       []string  `json:"attendees"`
	LinkedClientID  string    `json:"linked_client_id"`
	LinkedSessionID string    `json:"linked_session_id"`
}

func (r *eventRequest) validate() string {
	if !r.EndTime.After(r.StartTime) {
		return "end_time must be after start_time"
	}
	return ""
}

func (r *eventRequest) applyTo(event *db.CalendarEvent) {
	event.Title = r.Title
	event.Description = r.Description
	event.Location = r.Location
	event.StartTime = r.StartTime
	event.EndTime = r.EndTime
	event.AllDay = r.AllDay
	event.Attendees = r.Attendees
	event.LinkedClientID = r.LinkedClientID
	event.LinkedSessionID = r.LinkedSessionID
}

// clientRequest is the request body for registering a client.
type clientRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

// sessionRequest is the request body for scheduling a session.
type sessionRequest struct {
	ClientID    string    `json:"client_id" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	DurationMin int       `json:"duration_min"`
}

// APITriggerSync triggers an inbound sync pass for an owner/source pair.
// The pass runs in the background; progress is visible via /api/activity.
func (h *Handlers) APITriggerSync(c *gin.Context) {
	ownerID := c.Param("owner")
	source := db.EventSource(c.Param("source"))

	if !source.IsValid() || source == db.SourceLocal {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown sync source"})
		return
	}

	if h.tracker.IsSyncing(ownerID, source) {
		c.JSON(http.StatusConflict, gin.H{"error": "Sync already in progress"})
		return
	}

	h.scheduler.TriggerSync(ownerID, source)

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync triggered"})
}

// APIListEvents returns an owner's events, optionally filtered by source.
func (h *Handlers) APIListEvents(c *gin.Context) {
	ownerID := c.Param("owner")

	sources := []db.EventSource{db.SourceGoogle, db.SourcePracticeManagement, db.SourceLocal}
	if s := c.Query("source"); s != "" {
		source := db.EventSource(s)
		if !source.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source"})
			return
		}
		sources = []db.EventSource{source}
	}

	events := make([]*db.CalendarEvent, 0)
	for _, source := range sources {
		found, err := h.db.FindEventsByOwnerAndSource(c.Request.Context(), ownerID, source)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load events")})
			return
		}
		events = append(events, found...)
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// APIGetEvent returns a single event by id.
func (h *Handlers) APIGetEvent(c *gin.Context) {
	event, err := h.db.FindEventByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load event")})
		return
	}
	c.JSON(http.StatusOK, event)
}

// APICreateEvent creates a locally authored event. It enters the outbound
// queue as pending_create and is picked up by the next push cycle.
func (h *Handlers) APICreateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	event := &db.CalendarEvent{
		ID:      uuid.New().String(),
		OwnerID: c.Param("owner"),
	}
	req.applyTo(event)
	enginesync.NewLocalEvent(event, uuid.New().String())

	if err := h.db.UpsertEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create event")})
		return
	}

	c.JSON(http.StatusCreated, event)
}

// APIUpdateEvent applies a local edit to an event. The record moves to
// pending_update (or stays pending_create if it was never pushed) and is
// re-propagated by the outbound queue.
func (h *Handlers) APIUpdateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	event, err := h.db.FindEventByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load event")})
		return
	}

	if err := enginesync.MarkLocalEdit(event); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Event cannot be edited in its current state"})
		return
	}
	req.applyTo(event)

	if err := h.db.UpsertEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to update event")})
		return
	}

	c.JSON(http.StatusOK, event)
}

// APIDeleteEvent requests deletion of an event. A record that was never
// pushed upstream is removed immediately; anything else is queued as
// pending_delete and removed once the deletion is confirmed upstream.
func (h *Handlers) APIDeleteEvent(c *gin.Context) {
	event, err := h.db.FindEventByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load event")})
		return
	}

	removeNow, err := enginesync.MarkLocalDelete(event)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Event cannot be deleted in its current state"})
		return
	}

	if removeNow {
		if err := h.db.DeleteEvent(c.Request.Context(), event.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to delete event")})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
		return
	}

	if err := h.db.UpsertEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to queue deletion")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deletion queued"})
}

// APIRetryEvent re-attempts the failed push of an errored event.
func (h *Handlers) APIRetryEvent(c *gin.Context) {
	err := h.queue.Retry(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Retry succeeded"})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
	case errors.Is(err, enginesync.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": "Event is not retryable"})
	default:
		// The push itself failed; the event stays in the error state with
		// the new failure recorded on it.
		c.JSON(http.StatusBadGateway, gin.H{"error": sanitizeError(err, "Retry failed")})
	}
}

// APIPendingEvents returns the owner's outbound queue, oldest first.
func (h *Handlers) APIPendingEvents(c *gin.Context) {
	pending, err := h.queue.ListPending(c.Request.Context(), c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load pending events")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

// APIErroredEvents returns the owner's events stuck in the error state.
func (h *Handlers) APIErroredEvents(c *gin.Context) {
	errored, err := h.db.FindErroredEventsByOwner(c.Request.Context(), c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load errored events")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errored": errored})
}

// APISyncLogs returns the owner's recent sync pass outcomes, newest first.
func (h *Handlers) APISyncLogs(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	logs, err := h.db.GetSyncLogs(c.Request.Context(), c.Param("owner"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load sync logs")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// APIListClients returns the owner's client roster.
func (h *Handlers) APIListClients(c *gin.Context) {
	clients, err := h.db.GetClientsByOwner(c.Request.Context(), c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load clients")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// APICreateClient registers a client on the owner's roster.
func (h *Handlers) APICreateClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	client := &db.Client{
		ID:      uuid.New().String(),
		OwnerID: c.Param("owner"),
		Name:    req.Name,
		Email:   req.Email,
	}
	if err := h.db.CreateClient(c.Request.Context(), client); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create client")})
		return
	}
	c.JSON(http.StatusCreated, client)
}

// APIListSessions returns the owner's sessions in a time window. The window
// defaults to the surrounding 60 days.
func (h *Handlers) APIListSessions(c *gin.Context) {
	from := time.Now().AddDate(0, 0, -30)
	to := time.Now().AddDate(0, 0, 30)
	if f := c.Query("from"); f != "" {
		parsed, err := time.Parse(time.RFC3339, f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		from = parsed
	}
	if t := c.Query("to"); t != "" {
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		to = parsed
	}

	sessions, err := h.db.FindSessionsInWindow(c.Request.Context(), c.Param("owner"), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load sessions")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// APICreateSession schedules a clinical session for a client.
func (h *Handlers) APICreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.DurationMin <= 0 {
		req.DurationMin = 50
	}

	session := &db.Session{
		ID:          uuid.New().String(),
		OwnerID:     c.Param("owner"),
		ClientID:    req.ClientID,
		ScheduledAt: req.ScheduledAt,
		DurationMin: req.DurationMin,
	}
	if err := h.db.CreateSession(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create session")})
		return
	}
	c.JSON(http.StatusCreated, session)
}
