package types

import "fmt"

// Service identifies one external integration that a turn can be routed to.
type Service string

const (
	// ServiceNone means the turn is answered directly without any tool agent.
	ServiceNone     Service = ""
	ServiceGmail    Service = "gmail"
	ServiceCalendar Service = "calendar"
	ServiceDocs     Service = "docs"
	ServiceNotion   Service = "notion"
	ServiceGitHub   Service = "github"
)

// AllServices returns all routable services.
// The order is the fixed classification priority: when a message matches the
// vocabulary of more than one service and conversation history does not break
// the tie, the first match in this order wins. Services with the most specific
// vocabulary come first; "docs" and "gmail" have the loosest keyword sets and
// therefore rank last.
func AllServices() []Service {
	return []Service{
		ServiceGitHub,
		ServiceNotion,
		ServiceCalendar,
		ServiceDocs,
		ServiceGmail,
	}
}

// IsValid checks if the service is a known routable integration
func (s Service) IsValid() bool {
	switch s {
	case ServiceGmail, ServiceCalendar, ServiceDocs, ServiceNotion, ServiceGitHub:
		return true
	default:
		return false
	}
}

// String returns the string representation of the service
func (s Service) String() string {
	return string(s)
}

// ParseService parses a string into a Service
func ParseService(s string) (Service, error) {
	svc := Service(s)
	if !svc.IsValid() {
		return "", fmt.Errorf("invalid service: %s", s)
	}
	return svc, nil
}
