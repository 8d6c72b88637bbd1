package router_test

import (
	"testing"

	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/router"
	"github.com/m-mizutani/gt"
)

func TestIsSimpleMessage(t *testing.T) {
	simple := []string{
		"hi", "Hello", "hey there", "how are you?", "good morning",
		"what's up", "thanks!", "thank you", "bye", "ok", "yeah", "cool",
	}
	for _, msg := range simple {
		gt.Bool(t, router.IsSimpleMessage(msg)).True()
	}

	complex := []string{
		"hi, can you check my inbox?",
		"what meetings do I have today",
		"show my github issues",
		"tell me about quantum computing",
	}
	for _, msg := range complex {
		gt.Bool(t, router.IsSimpleMessage(msg)).False()
	}
}

func TestClassify(t *testing.T) {
	t.Run("agent mode off never selects a service", func(t *testing.T) {
		r := router.New()
		d := r.Classify("create a github issue about the crash", nil, false, nil)
		gt.Value(t, d.Service).Equal(types.ServiceNone)
		gt.Bool(t, d.Simple).False()
	})

	t.Run("simple message short-circuits before anything else", func(t *testing.T) {
		r := router.New()
		d := r.Classify("good evening", nil, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceNone)
		gt.Bool(t, d.Simple).True()
	})

	t.Run("selects the service named in the message", func(t *testing.T) {
		r := router.New()

		cases := map[string]types.Service{
			"check my gmail inbox":                 types.ServiceGmail,
			"what meetings are on my calendar":     types.ServiceCalendar,
			"create a new google doc":              types.ServiceDocs,
			"add a block to my notion workspace":   types.ServiceNotion,
			"list open issues in the repository":   types.ServiceGitHub,
			"tell me a story about a lighthouse":   types.ServiceNone,
			"explain how garbage collection works": types.ServiceNone,
		}
		for msg, want := range cases {
			d := r.Classify(msg, nil, true, nil)
			gt.Value(t, d.Service).Equal(want)
		}
	})

	t.Run("notion suppresses docs on shared cues", func(t *testing.T) {
		r := router.New()
		d := r.Classify("update the page in my notion database", nil, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceNotion)
	})

	t.Run("allow list constrains classification", func(t *testing.T) {
		r := router.New()

		d := r.Classify("check my gmail inbox", nil, true, []types.Service{types.ServiceCalendar})
		gt.Value(t, d.Service).Equal(types.ServiceNone)

		d = r.Classify("check my gmail inbox", nil, true, []types.Service{types.ServiceGmail})
		gt.Value(t, d.Service).Equal(types.ServiceGmail)
	})

	t.Run("empty allow list allows all services", func(t *testing.T) {
		r := router.New()

		d := r.Classify("check my gmail inbox", nil, true, []types.Service{})
		gt.Value(t, d.Service).Equal(types.ServiceGmail)

		d = r.Classify("check my gmail inbox", nil, true, make([]types.Service, 0))
		gt.Value(t, d.Service).Equal(types.ServiceGmail)
	})

	t.Run("history keeps the thread on a service", func(t *testing.T) {
		r := router.New()
		history := []router.HistoryEntry{
			{Role: types.RoleUser, Content: "show my gmail inbox"},
			{Role: types.RoleAssistant, Content: "You have 3 unread emails."},
		}

		d := r.Classify("and the second one?", history, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceGmail)
	})

	t.Run("history window is bounded", func(t *testing.T) {
		r := router.New()
		history := []router.HistoryEntry{
			{Role: types.RoleUser, Content: "show my gmail inbox"},
			{Role: types.RoleAssistant, Content: "You have 3 unread mails."},
			{Role: types.RoleUser, Content: "what about the weather"},
			{Role: types.RoleAssistant, Content: "Sunny."},
			{Role: types.RoleUser, Content: "and tomorrow"},
			{Role: types.RoleAssistant, Content: "Rain."},
		}

		d := r.Classify("and the second one?", history, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceNone)
	})

	t.Run("multi-service ambiguity resolves by history recency", func(t *testing.T) {
		r := router.New()
		history := []router.HistoryEntry{
			{Role: types.RoleUser, Content: "any new email today?"},
		}

		// both calendar ("meeting") and gmail ("email") match the message;
		// gmail was mentioned most recently
		d := r.Classify("email the meeting notes", history, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceGmail)
	})

	t.Run("unresolved ambiguity falls back to fixed priority", func(t *testing.T) {
		r := router.New()

		// calendar ("meeting") and gmail ("email") both match, no history:
		// calendar wins on priority
		d := r.Classify("email the meeting notes", nil, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceCalendar)
	})

	t.Run("custom vocabulary override", func(t *testing.T) {
		r := router.New(router.WithVocabulary(types.ServiceGmail, []string{"correo"}))

		d := r.Classify("revisa mi correo", nil, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceGmail)

		d = r.Classify("check my gmail", nil, true, nil)
		gt.Value(t, d.Service).Equal(types.ServiceNone)
	})
}
