package calendar

import (
	"context"
	"time"
)

// Service provides interface to the Google Calendar API scoped to one user's
// token
type Service interface {
	// ListUpcomingEvents retrieves events starting from now, soonest first
	ListUpcomingEvents(ctx context.Context, limit int) ([]*Event, error)

	// CreateEvent creates an event on the user's primary calendar
	CreateEvent(ctx context.Context, input *EventInput) (*Event, error)
}

// Event is a trimmed view of a calendar event
type Event struct {
	ID       string
	Title    string
	Location string
	Start    time.Time
	End      time.Time
}

// EventInput describes an event to create
type EventInput struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}
