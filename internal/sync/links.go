package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
)

// defaultSessionTolerance is how far an event start may drift from a
// session's scheduled time and still be considered the same appointment.
const defaultSessionTolerance = 15 * time.Minute

// LinkResolver attaches client and session links to calendar events by
// matching against the owner's roster. Resolution is best effort and
// non-blocking: a miss leaves the link empty and is never an error, and the
// resolver only ever writes the event's link fields, never the client or
// session records themselves.
type LinkResolver struct {
	store     EventStore
	roster    Roster
	tolerance time.Duration
	log       *slog.Logger
}

// NewLinkResolver creates a LinkResolver with the default session tolerance.
func NewLinkResolver(store EventStore, roster Roster, logger *slog.Logger) *LinkResolver {
	return &LinkResolver{
		store:     store,
		roster:    roster,
		tolerance: defaultSessionTolerance,
		log:       logger,
	}
}

// ResolveOwner walks the owner's events for one source and fills in missing
// client/session links where a match is found. Returns how many events
// gained at least one link. Lookup failures are logged and swallowed.
func (lr *LinkResolver) ResolveOwner(ctx context.Context, ownerID string, source db.EventSource) int {
	events, err := lr.store.FindEventsByOwnerAndSource(ctx, ownerID, source)
	if err != nil {
		lr.log.Debug("link resolution skipped", "owner", ownerID, "source", source, "error", err)
		return 0
	}

	clients, err := lr.roster.GetClientsByOwner(ctx, ownerID)
	if err != nil {
		lr.log.Debug("client roster unavailable", "owner", ownerID, "error", err)
		clients = nil
	}

	resolved := 0
	for _, ev := range events {
		if ev.LinkedClientID != "" && ev.LinkedSessionID != "" {
			continue
		}
		if lr.Resolve(ctx, ev, clients) {
			if err := lr.store.UpsertEvent(ctx, ev); err != nil {
				lr.log.Debug("failed to persist links", "event", ev.ID, "error", err)
				continue
			}
			resolved++
		}
	}
	return resolved
}

// Resolve fills in the event's missing link fields from the given roster.
// Returns true if anything changed. clients may be nil.
func (lr *LinkResolver) Resolve(ctx context.Context, event *db.CalendarEvent, clients []*db.Client) bool {
	changed := false

	if event.LinkedClientID == "" {
		if id := matchClient(event, clients); id != "" {
			event.LinkedClientID = id
			changed = true
		}
	}

	if event.LinkedSessionID == "" && !event.StartTime.IsZero() {
		from := event.StartTime.Add(-lr.tolerance)
		to := event.StartTime.Add(lr.tolerance)
		sessions, err := lr.roster.FindSessionsInWindow(ctx, event.OwnerID, from, to)
		if err != nil {
			lr.log.Debug("session lookup failed", "owner", event.OwnerID, "error", err)
			return changed
		}
		if id := matchSession(event, sessions); id != "" {
			event.LinkedSessionID = id
			changed = true
		}
	}

	return changed
}

// matchClient matches by attendee email first, then by client name appearing
// in the event title.
func matchClient(event *db.CalendarEvent, clients []*db.Client) string {
	for _, client := range clients {
		if client.Email == "" {
			continue
		}
		for _, attendee := range event.Attendees {
			if strings.EqualFold(attendee, client.Email) {
				return client.ID
			}
		}
	}

	title := strings.ToLower(event.Title)
	for _, client := range clients {
		if client.Name == "" {
			continue
		}
		if strings.Contains(title, strings.ToLower(client.Name)) {
			return client.ID
		}
	}

	return ""
}

// matchSession picks the session closest to the event start. When the event
// already has a client link, sessions for other clients are ignored.
func matchSession(event *db.CalendarEvent, sessions []*db.Session) string {
	var best *db.Session
	var bestDelta time.Duration

	for _, session := range sessions {
		if event.LinkedClientID != "" && session.ClientID != event.LinkedClientID {
			continue
		}
		delta := event.StartTime.Sub(session.ScheduledAt)
		if delta < 0 {
			delta = -delta
		}
		if best == nil || delta < bestDelta {
			best = session
			bestDelta = delta
		}
	}

	if best == nil {
		return ""
	}
	return best.ID
}
