package router

import (
	"strings"

	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// HistoryEntry is one prior turn given to the router for context-aware
// classification. Entries are ordered oldest first.
type HistoryEntry struct {
	Role    types.Role
	Content string
}

// Decision is the routing outcome for one message. Service is ServiceNone
// when the turn should be answered directly; Simple marks greetings and
// acknowledgements that skip memory retrieval entirely.
type Decision struct {
	Service types.Service
	Simple  bool
}

// defaultVocabularies maps each service to the lexical cues that select it.
// GitHub cues with trailing spaces avoid false positives on words like
// "problem" or "reprocess".
func defaultVocabularies() map[types.Service][]string {
	return map[types.Service][]string{
		types.ServiceNotion:   {"notion", "page", "database", "workspace", "block"},
		types.ServiceGitHub:   {"github", "repository", "repositories", "repo ", "repos ", "issue", "pull request", "pr ", "commit"},
		types.ServiceDocs:     {"google doc", "docs", "document", "sheet"},
		types.ServiceCalendar: {"calendar", "event", "meeting", "schedule"},
		types.ServiceGmail:    {"email", "gmail", "inbox", "send email"},
	}
}

// defaultHistoryWindow is how many trailing history entries are scanned when
// the message itself names no service
const defaultHistoryWindow = 3

// Router deterministically resolves each message to no service or exactly one
type Router struct {
	vocab         map[types.Service][]string
	priority      []types.Service
	historyWindow int
}

type Option func(*Router)

// WithVocabulary replaces the cue list of one service
func WithVocabulary(service types.Service, cues []string) Option {
	return func(r *Router) {
		r.vocab[service] = cues
	}
}

// WithPriority replaces the fixed tie-break order
func WithPriority(order []types.Service) Option {
	return func(r *Router) {
		r.priority = order
	}
}

func WithHistoryWindow(n int) Option {
	return func(r *Router) {
		r.historyWindow = n
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		vocab:         defaultVocabularies(),
		priority:      types.AllServices(),
		historyWindow: defaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify resolves the message to a Decision. The agent-mode flag is
// authoritative: when false no service is ever selected regardless of
// content. allowedApps constrains which services may be considered; an empty
// allow-list allows all. Ambiguity resolves by history recency, then the fixed priority
// order; anything unresolved falls back to no service.
func (r *Router) Classify(message string, history []HistoryEntry, agentMode bool, allowedApps []types.Service) Decision {
	if IsSimpleMessage(message) {
		return Decision{Service: types.ServiceNone, Simple: true}
	}

	if !agentMode {
		return Decision{Service: types.ServiceNone}
	}

	allowed := allowSet(allowedApps)
	lower := strings.ToLower(strings.TrimSpace(message))

	matched := r.matchServices(lower, allowed)
	switch len(matched) {
	case 0:
		// the message names nothing; a service mentioned in the recent
		// history keeps the thread on that service
		if svc := r.matchHistory(history, allowed); svc != types.ServiceNone {
			return Decision{Service: svc}
		}
		return Decision{Service: types.ServiceNone}

	case 1:
		return Decision{Service: matched[0]}

	default:
		if svc := r.mostRecentInHistory(matched, history); svc != types.ServiceNone {
			return Decision{Service: svc}
		}
		return Decision{Service: r.byPriority(matched)}
	}
}

func allowSet(allowedApps []types.Service) map[types.Service]bool {
	if len(allowedApps) == 0 {
		return nil
	}
	set := make(map[types.Service]bool, len(allowedApps))
	for _, svc := range allowedApps {
		set[svc] = true
	}
	return set
}

func (r *Router) serviceMatches(service types.Service, lower string) bool {
	for _, cue := range r.vocab[service] {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// matchServices returns all allowed services whose cues appear in the
// message. Docs cues overlap heavily with Notion ("page", "document"), so a
// Notion match suppresses Docs.
func (r *Router) matchServices(lower string, allowed map[types.Service]bool) []types.Service {
	var matched []types.Service
	for _, service := range r.priority {
		if allowed != nil && !allowed[service] {
			continue
		}
		if service == types.ServiceDocs && r.serviceMatches(types.ServiceNotion, lower) {
			continue
		}
		if r.serviceMatches(service, lower) {
			matched = append(matched, service)
		}
	}
	return matched
}

// matchHistory scans the trailing history window, most recent entry first,
// and returns the first allowed service mentioned there
func (r *Router) matchHistory(history []HistoryEntry, allowed map[types.Service]bool) types.Service {
	for _, entry := range r.recentHistory(history) {
		lower := strings.ToLower(entry.Content)
		if matched := r.matchServices(lower, allowed); len(matched) > 0 {
			return r.byPriority(matched)
		}
	}
	return types.ServiceNone
}

// mostRecentInHistory breaks a multi-service match by which candidate was
// mentioned most recently in the history window
func (r *Router) mostRecentInHistory(candidates []types.Service, history []HistoryEntry) types.Service {
	for _, entry := range r.recentHistory(history) {
		lower := strings.ToLower(entry.Content)
		var mentioned []types.Service
		for _, svc := range candidates {
			if r.serviceMatches(svc, lower) {
				mentioned = append(mentioned, svc)
			}
		}
		if len(mentioned) > 0 {
			return r.byPriority(mentioned)
		}
	}
	return types.ServiceNone
}

// recentHistory returns the last historyWindow entries, newest first
func (r *Router) recentHistory(history []HistoryEntry) []HistoryEntry {
	start := len(history) - r.historyWindow
	if start < 0 {
		start = 0
	}
	recent := make([]HistoryEntry, 0, len(history)-start)
	for i := len(history) - 1; i >= start; i-- {
		recent = append(recent, history[i])
	}
	return recent
}

func (r *Router) byPriority(candidates []types.Service) types.Service {
	set := make(map[types.Service]bool, len(candidates))
	for _, svc := range candidates {
		set[svc] = true
	}
	for _, svc := range r.priority {
		if set[svc] {
			return svc
		}
	}
	return types.ServiceNone
}
