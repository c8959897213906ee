package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sagebrook/practicesync/internal/caldav"
	"github.com/sagebrook/practicesync/internal/db"
	"github.com/sagebrook/practicesync/internal/sync"
)

// GoogleConfig configures the CalDAV-backed adapter for the google source.
// PathTemplate must contain a single %s which is replaced with the owner id
// to address that owner's collection.
type GoogleConfig struct {
	BaseURL      string
	PathTemplate string
	Username     string
	Password     string
}

// GoogleAdapter fetches from and pushes to a Google calendar over CalDAV.
// It implements both [sync.Fetcher] and [sync.Pusher].
type GoogleAdapter struct {
	cfg GoogleConfig
}

// NewGoogleAdapter creates the CalDAV adapter for the google source.
func NewGoogleAdapter(cfg GoogleConfig) (*GoogleAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("google adapter: base URL is required")
	}
	if !strings.Contains(cfg.PathTemplate, "%s") {
		return nil, fmt.Errorf("google adapter: path template must contain %%s for the owner id")
	}
	return &GoogleAdapter{cfg: cfg}, nil
}

func (g *GoogleAdapter) clientFor(ownerID string) (*caldav.Client, error) {
	calendarPath := fmt.Sprintf(g.cfg.PathTemplate, ownerID)
	return caldav.NewClient(g.cfg.BaseURL, calendarPath, g.cfg.Username, g.cfg.Password)
}

// FetchEvents returns the complete current event list for the owner.
// Any CalDAV or decode failure is returned as an error, never as a shorter
// list.
func (g *GoogleAdapter) FetchEvents(ctx context.Context, ownerID string) ([]sync.SourceEvent, error) {
	client, err := g.clientFor(ownerID)
	if err != nil {
		return nil, err
	}

	events, err := client.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching google events for %s: %w", ownerID, err)
	}

	out := make([]sync.SourceEvent, 0, len(events))
	for i := range events {
		out = append(out, sourceEventFromCalDAV(&events[i]))
	}
	return out, nil
}

// PushCreate uploads a new event; the UID we assign becomes the external id.
func (g *GoogleAdapter) PushCreate(ctx context.Context, event *db.CalendarEvent) (string, error) {
	client, err := g.clientFor(event.OwnerID)
	if err != nil {
		return "", err
	}

	ce := caldavEventFromRecord(event)
	if ce.UID == "" {
		ce.UID = event.ID
	}
	if err := client.PutEvent(ctx, ce); err != nil {
		return "", fmt.Errorf("creating google event: %w", err)
	}
	return ce.UID, nil
}

// PushUpdate overwrites the event's object on the server.
func (g *GoogleAdapter) PushUpdate(ctx context.Context, event *db.CalendarEvent) error {
	client, err := g.clientFor(event.OwnerID)
	if err != nil {
		return err
	}
	if err := client.PutEvent(ctx, caldavEventFromRecord(event)); err != nil {
		return fmt.Errorf("updating google event %s: %w", event.ExternalID, err)
	}
	return nil
}

// PushDelete removes the event's object from the server.
func (g *GoogleAdapter) PushDelete(ctx context.Context, event *db.CalendarEvent) error {
	client, err := g.clientFor(event.OwnerID)
	if err != nil {
		return err
	}
	if err := client.DeleteEvent(ctx, caldavEventFromRecord(event)); err != nil {
		return fmt.Errorf("deleting google event %s: %w", event.ExternalID, err)
	}
	return nil
}

func sourceEventFromCalDAV(ev *caldav.Event) sync.SourceEvent {
	return sync.SourceEvent{
		ExternalID:   ev.UID,
		Title:        ev.Summary,
		Description:  ev.Description,
		Location:     ev.Location,
		StartTime:    ev.StartTime,
		EndTime:      ev.EndTime,
		AllDay:       ev.AllDay,
		Attendees:    ev.Attendees,
		RecurrenceID: ev.RecurrenceID,
		RawData:      ev.Raw,
	}
}

func caldavEventFromRecord(event *db.CalendarEvent) *caldav.Event {
	return &caldav.Event{
		UID:         event.ExternalID,
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		AllDay:      event.AllDay,
		Attendees:   event.Attendees,
	}
}
