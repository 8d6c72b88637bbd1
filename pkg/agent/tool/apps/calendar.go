package apps

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent/tool"
	"github.com/aiga-lab/mnemosyne/pkg/service/calendar"
)

// NewCalendar builds the Google Calendar tool set
func NewCalendar(svc calendar.Service) []gollem.Tool {
	return []gollem.Tool{
		&listUpcomingEventsTool{svc: svc},
		&createEventTool{svc: svc},
	}
}

func eventToMap(e *calendar.Event) map[string]any {
	return map[string]any{
		"id":       e.ID,
		"title":    e.Title,
		"location": e.Location,
		"start":    e.Start.Format(time.RFC3339),
		"end":      e.End.Format(time.RFC3339),
	}
}

// listUpcomingEventsTool retrieves events starting from now
type listUpcomingEventsTool struct {
	svc calendar.Service
}

func (t *listUpcomingEventsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "calendar__list_upcoming",
		Description: "List the user's upcoming calendar events, soonest first",
		Parameters: map[string]*gollem.Parameter{
			"limit": limitParam("Maximum number of events to return (default: 10)"),
		},
	}
}

func (t *listUpcomingEventsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, "Listing upcoming events...")
	events, err := t.svc.ListUpcomingEvents(ctx, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list upcoming events")
	}

	items := make([]map[string]any, len(events))
	for i, e := range events {
		items[i] = eventToMap(e)
	}
	return map[string]any{"events": items, "count": len(items)}, nil
}

// createEventTool creates an event on the user's primary calendar
type createEventTool struct {
	svc calendar.Service
}

func (t *createEventTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "calendar__create_event",
		Description: "Create an event on the user's primary calendar",
		Parameters: map[string]*gollem.Parameter{
			"title": {
				Type:        gollem.TypeString,
				Description: "Event title",
				Required:    true,
			},
			"start": {
				Type:        gollem.TypeString,
				Description: "Event start time in RFC3339 format (e.g. 2026-01-15T14:00:00Z)",
				Required:    true,
			},
			"end": {
				Type:        gollem.TypeString,
				Description: "Event end time in RFC3339 format",
				Required:    true,
			},
			"description": {
				Type:        gollem.TypeString,
				Description: "Event description",
				Required:    false,
			},
			"location": {
				Type:        gollem.TypeString,
				Description: "Event location",
				Required:    false,
			},
		},
	}
}

func (t *createEventTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	title, _ := args["title"].(string)
	startStr, _ := args["start"].(string)
	endStr, _ := args["end"].(string)
	if title == "" || startStr == "" || endStr == "" {
		return nil, goerr.New("title, start and end are required")
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid start time, expected RFC3339", goerr.V("start", startStr))
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid end time, expected RFC3339", goerr.V("end", endStr))
	}

	description, _ := args["description"].(string)
	location, _ := args["location"].(string)

	tool.Update(ctx, fmt.Sprintf("Creating event %q...", title))
	event, err := t.svc.CreateEvent(ctx, &calendar.EventInput{
		Title:       title,
		Description: description,
		Location:    location,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create event", goerr.V("title", title))
	}

	return eventToMap(event), nil
}
