// Package caldav wraps the emersion CalDAV client with the event model the
// sync engine works in. It knows nothing about sync lifecycle state; it
// lists, writes, and deletes VEVENTs on a single calendar collection.
package caldav

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrInvalidResponse  = errors.New("invalid server response")
	ErrMalformedContent = errors.New("malformed calendar content")
)

const (
	defaultTimeout = 30 * time.Second
	minTLSVersion  = tls.VersionTLS12

	prodID = "-//Sagebrook//PracticeSync//EN"
)

// Event is a calendar event as it exists on the CalDAV server.
type Event struct {
	Path         string
	ETag         string
	UID          string
	Summary      string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	AllDay       bool
	Attendees    []string
	RecurrenceID string
	Raw          string // iCalendar source of the containing VCALENDAR
}

// Client provides CalDAV operations against one calendar collection.
type Client struct {
	baseURL      string
	calendarPath string
	caldavClient *caldav.Client
}

// NewClient creates a CalDAV client for the calendar collection at
// calendarPath under baseURL, authenticating with basic auth.
func NewClient(baseURL, calendarPath, username, password string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrConnectionFailed)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
	}

	caldavClient, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, username, password),
		baseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create CalDAV client: %w", ErrConnectionFailed, err)
	}

	return &Client{
		baseURL:      baseURL,
		calendarPath: calendarPath,
		caldavClient: caldavClient,
	}, nil
}

// CalendarPath returns the collection path this client operates on.
func (c *Client) CalendarPath() string {
	return c.calendarPath
}

// ListEvents returns every VEVENT in the collection. A multistatus response
// containing an undecodable object fails the whole listing: callers feed the
// result into deletion-by-absence reconciliation, so a silently shortened
// list is worse than an error.
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name:     "VEVENT",
				AllProps: true,
			}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar query failed: %w", ErrConnectionFailed, err)
	}

	events := make([]Event, 0, len(objects))
	for _, obj := range objects {
		if obj.Data == nil {
			return nil, fmt.Errorf("%w: object %s has no calendar data", ErrInvalidResponse, obj.Path)
		}
		parsed, err := EventsFromCalendar(obj.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: object %s: %w", ErrMalformedContent, obj.Path, err)
		}
		for i := range parsed {
			parsed[i].Path = obj.Path
			parsed[i].ETag = obj.ETag
		}
		events = append(events, parsed...)
	}

	return events, nil
}

// PutEvent creates or updates the event on the server. The object path is
// derived from the UID.
func (c *Client) PutEvent(ctx context.Context, event *Event) error {
	if event.UID == "" {
		return fmt.Errorf("%w: event has no UID", ErrMalformedContent)
	}

	cal, err := CalendarFromEvent(event)
	if err != nil {
		return err
	}

	objPath := event.Path
	if objPath == "" {
		objPath = path.Join(c.calendarPath, event.UID+".ics")
	}

	if _, err := c.caldavClient.PutCalendarObject(ctx, objPath, cal); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrConnectionFailed, objPath, err)
	}
	return nil
}

// DeleteEvent removes the event's object from the server.
func (c *Client) DeleteEvent(ctx context.Context, event *Event) error {
	objPath := event.Path
	if objPath == "" {
		objPath = path.Join(c.calendarPath, event.UID+".ics")
	}

	if err := c.caldavClient.RemoveAll(ctx, objPath); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrConnectionFailed, objPath, err)
	}
	return nil
}

// EventsFromCalendar extracts the VEVENTs from a parsed VCALENDAR.
func EventsFromCalendar(cal *ical.Calendar) ([]Event, error) {
	var buf strings.Builder
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("re-encoding calendar: %w", err)
	}
	raw := buf.String()

	var events []Event
	for _, icalEvent := range cal.Events() {
		ev, err := eventFromComponent(&icalEvent)
		if err != nil {
			return nil, err
		}
		ev.Raw = raw
		events = append(events, *ev)
	}
	return events, nil
}

// eventFromComponent converts one VEVENT into an Event.
func eventFromComponent(icalEvent *ical.Event) (*Event, error) {
	uid, err := icalEvent.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return nil, fmt.Errorf("event has no UID")
	}

	ev := &Event{UID: uid}

	ev.Summary, _ = icalEvent.Props.Text(ical.PropSummary)
	ev.Description, _ = icalEvent.Props.Text(ical.PropDescription)
	ev.Location, _ = icalEvent.Props.Text(ical.PropLocation)
	ev.RecurrenceID, _ = icalEvent.Props.Text(ical.PropRecurrenceID)

	if start, err := icalEvent.DateTimeStart(time.UTC); err == nil {
		ev.StartTime = start
	}
	if end, err := icalEvent.DateTimeEnd(time.UTC); err == nil {
		ev.EndTime = end
	}

	if prop := icalEvent.Props.Get(ical.PropDateTimeStart); prop != nil {
		ev.AllDay = prop.ValueType() == ical.ValueDate
	}

	for _, prop := range icalEvent.Props.Values(ical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, strings.TrimPrefix(strings.ToLower(prop.Value), "mailto:"))
	}

	return ev, nil
}

// CalendarFromEvent builds a single-VEVENT VCALENDAR for upload.
func CalendarFromEvent(event *Event) (*ical.Calendar, error) {
	if event.StartTime.IsZero() || event.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: event %s has no time range", ErrMalformedContent, event.UID)
	}

	icalEvent := ical.NewEvent()
	icalEvent.Props.SetText(ical.PropUID, event.UID)
	icalEvent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	icalEvent.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime.UTC())
	icalEvent.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime.UTC())
	if event.Summary != "" {
		icalEvent.Props.SetText(ical.PropSummary, event.Summary)
	}
	if event.Description != "" {
		icalEvent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		icalEvent.Props.SetText(ical.PropLocation, event.Location)
	}
	for _, attendee := range event.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + attendee
		icalEvent.Props.Add(prop)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Children = append(cal.Children, icalEvent.Component)

	return cal, nil
}
