package reply

import (
	"context"
	"strings"

	"github.com/InnClaw/InnClaw/internal/store"
)

// defaultGreeting is returned when no rule matches the inbound text.
const defaultGreeting = "Hello! Thanks for reaching out — a member of our team will get back to you shortly."

// rule maps a set of keywords to one canned response. The first rule whose
// keyword appears in the inbound text (case-insensitive substring) wins.
type rule struct {
	keywords []string
	response string
}

var defaultRules = []rule{
	{
		keywords: []string{"price", "cost", "rate", "how much"},
		response: "Our room rates depend on the dates and room type. Could you share your check-in and check-out dates so we can quote you?",
	},
	{
		keywords: []string{"check-in", "check in", "arrival"},
		response: "Check-in starts at 3 PM. If you arrive earlier we are happy to store your luggage.",
	},
	{
		keywords: []string{"check-out", "check out", "checkout"},
		response: "Check-out is at 11 AM. A late check-out may be possible on request, subject to availability.",
	},
	{
		keywords: []string{"open", "hours", "reception"},
		response: "Our reception is staffed from 8 AM to 10 PM. Outside those hours, please leave a message and we will reply as soon as possible.",
	},
	{
		keywords: []string{"cancel", "cancellation"},
		response: "Cancellations are free up to 48 hours before arrival. Please send us your booking reference and we will take care of it.",
	},
	{
		keywords: []string{"breakfast"},
		response: "Breakfast is served daily from 7 AM to 10:30 AM and is included in most of our rates.",
	},
	{
		keywords: []string{"parking"},
		response: "We offer on-site parking for guests. Spots are limited, so let us know in advance if you need one.",
	},
	{
		keywords: []string{"wifi", "wi-fi", "internet"},
		response: "Free Wi-Fi is available throughout the hotel. The access code is on your key card holder.",
	},
	{
		keywords: []string{"hi", "hello", "hey", "good morning", "good evening"},
		response: defaultGreeting,
	},
}

// Rules is the deterministic keyword generator. It never fails and always
// returns non-empty text, which makes it the resilience backstop for the
// remote generator.
type Rules struct {
	rules []rule
}

// NewRules returns a generator with the built-in hotel rule set.
func NewRules() *Rules {
	return &Rules{rules: defaultRules}
}

// Generate matches the inbound text against the rule set. History is unused;
// the rule set is stateless by design.
func (r *Rules) Generate(_ context.Context, inbound store.Message, _ []store.Message) (string, error) {
	text := strings.ToLower(inbound.Text)
	for _, ru := range r.rules {
		for _, kw := range ru.keywords {
			if strings.Contains(text, kw) {
				return ru.response, nil
			}
		}
	}
	return defaultGreeting, nil
}
