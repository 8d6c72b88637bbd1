package calendar

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// client implements Service interface
type client struct {
	api *calendarapi.Service
}

// New creates a Calendar service bound to one user's OAuth access token
func New(ctx context.Context, token string) (Service, error) {
	if token == "" {
		return nil, goerr.New("calendar access token is required")
	}

	api, err := calendarapi.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create calendar client")
	}

	return &client{api: api}, nil
}

func (c *client) ListUpcomingEvents(ctx context.Context, limit int) ([]*Event, error) {
	resp, err := c.api.Events.List("primary").
		TimeMin(time.Now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list calendar events")
	}

	events := make([]*Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, fromAPIEvent(item))
	}

	return events, nil
}

func (c *client) CreateEvent(ctx context.Context, input *EventInput) (*Event, error) {
	if input.Title == "" {
		return nil, goerr.New("event title is required")
	}
	if input.Start.IsZero() || input.End.IsZero() {
		return nil, goerr.New("event start and end are required", goerr.V("title", input.Title))
	}

	created, err := c.api.Events.Insert("primary", &calendarapi.Event{
		Summary:     input.Title,
		Description: input.Description,
		Location:    input.Location,
		Start:       &calendarapi.EventDateTime{DateTime: input.Start.Format(time.RFC3339)},
		End:         &calendarapi.EventDateTime{DateTime: input.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create calendar event", goerr.V("title", input.Title))
	}

	return fromAPIEvent(created), nil
}

func fromAPIEvent(item *calendarapi.Event) *Event {
	event := &Event{
		ID:       item.Id,
		Title:    item.Summary,
		Location: item.Location,
	}
	event.Start = parseEventTime(item.Start)
	event.End = parseEventTime(item.End)
	return event
}

// parseEventTime handles both timed events (DateTime) and all-day events
// (Date)
func parseEventTime(edt *calendarapi.EventDateTime) time.Time {
	if edt == nil {
		return time.Time{}
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t
		}
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
