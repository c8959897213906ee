package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sagebrook/practicesync/internal/db"
	"github.com/sagebrook/practicesync/internal/sync"
)

var (
	ErrPracticeAPI      = errors.New("practice management API error")
	ErrTruncatedListing = errors.New("practice management listing truncated")
)

// PracticeConfig configures the JSON REST adapter for the
// practice-management source.
type PracticeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PracticeAdapter talks to the practice-management scheduling provider's
// appointments API. It implements both [sync.Fetcher] and [sync.Pusher].
type PracticeAdapter struct {
	cfg        PracticeConfig
	httpClient *http.Client
}

// NewPracticeAdapter creates the REST adapter for the practice-management
// source.
func NewPracticeAdapter(cfg PracticeConfig) (*PracticeAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("practice adapter: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("practice adapter: invalid base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PracticeAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// appointment is the provider's wire representation of one appointment.
type appointment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Notes       string    `json:"notes"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	Attendees   []string  `json:"attendees"`
	RecurringID string    `json:"recurring_id"`
}

// appointmentPage is one page of the provider's listing response.
type appointmentPage struct {
	Appointments []appointment `json:"appointments"`
	NextCursor   string        `json:"next_cursor"`
}

// FetchEvents drains every page of the owner's appointment listing. A failed
// page fetch fails the whole listing: handing back the pages collected so
// far would look like upstream deletions to the reconciler.
func (p *PracticeAdapter) FetchEvents(ctx context.Context, ownerID string) ([]sync.SourceEvent, error) {
	var out []sync.SourceEvent
	cursor := ""

	for {
		page, err := p.listPage(ctx, ownerID, cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTruncatedListing, err)
		}
		for i := range page.Appointments {
			appt := &page.Appointments[i]
			raw, _ := json.Marshal(appt)
			out = append(out, sync.SourceEvent{
				ExternalID:   appt.ID,
				Title:        appt.Title,
				Description:  appt.Notes,
				Location:     appt.Location,
				StartTime:    appt.StartsAt,
				EndTime:      appt.EndsAt,
				AllDay:       appt.AllDay,
				Attendees:    appt.Attendees,
				RecurrenceID: appt.RecurringID,
				RawData:      string(raw),
			})
		}
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// PushCreate creates the appointment upstream and returns its assigned id.
func (p *PracticeAdapter) PushCreate(ctx context.Context, event *db.CalendarEvent) (string, error) {
	body := appointmentFromRecord(event)
	var created appointment
	if err := p.do(ctx, http.MethodPost, p.appointmentsURL(event.OwnerID, ""), body, &created); err != nil {
		return "", fmt.Errorf("creating appointment: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: create response carried no id", ErrPracticeAPI)
	}
	return created.ID, nil
}

// PushUpdate overwrites the appointment upstream.
func (p *PracticeAdapter) PushUpdate(ctx context.Context, event *db.CalendarEvent) error {
	body := appointmentFromRecord(event)
	if err := p.do(ctx, http.MethodPut, p.appointmentsURL(event.OwnerID, event.ExternalID), body, nil); err != nil {
		return fmt.Errorf("updating appointment %s: %w", event.ExternalID, err)
	}
	return nil
}

// PushDelete removes the appointment upstream.
func (p *PracticeAdapter) PushDelete(ctx context.Context, event *db.CalendarEvent) error {
	if err := p.do(ctx, http.MethodDelete, p.appointmentsURL(event.OwnerID, event.ExternalID), nil, nil); err != nil {
		return fmt.Errorf("deleting appointment %s: %w", event.ExternalID, err)
	}
	return nil
}

func (p *PracticeAdapter) listPage(ctx context.Context, ownerID, cursor string) (*appointmentPage, error) {
	u := p.appointmentsURL(ownerID, "")
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(cursor)
	}

	var page appointmentPage
	if err := p.do(ctx, http.MethodGet, u, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (p *PracticeAdapter) appointmentsURL(ownerID, appointmentID string) string {
	u := fmt.Sprintf("%s/v1/owners/%s/appointments", p.cfg.BaseURL, url.PathEscape(ownerID))
	if appointmentID != "" {
		u += "/" + url.PathEscape(appointmentID)
	}
	return u
}

// do performs one JSON round trip. Non-2xx responses become ErrPracticeAPI.
func (p *PracticeAdapter) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for the error message, never the whole
		// thing.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %d %s", ErrPracticeAPI, method, rawURL, resp.StatusCode, string(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrPracticeAPI, err)
	}
	return nil
}

func appointmentFromRecord(event *db.CalendarEvent) *appointment {
	return &appointment{
		ID:          event.ExternalID,
		Title:       event.Title,
		Notes:       event.Description,
		Location:    event.Location,
		StartsAt:    event.StartTime,
		EndsAt:      event.EndTime,
		AllDay:      event.AllDay,
		Attendees:   event.Attendees,
		RecurringID: event.RecurrenceID,
	}
}
