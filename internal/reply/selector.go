package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/store"
)

// configErrorNotice is appended into the conversation when the remote
// credential is rejected, so the operator sees the misconfiguration instead
// of it being masked by the fallback indefinitely.
const configErrorNotice = "[innclaw] Automated replies are degraded: the assistant's API credential was rejected. Please update the provider configuration."

// Selector chooses a generator per the configured mode and demotes to the
// rule set when the remote generator fails. It never returns an error and
// never lets a generator panic escape: every call yields a usable reply.
type Selector struct {
	mode   config.Mode
	remote Generator
	rules  Generator
}

// NewSelector wires the selector for one processing cycle.
func NewSelector(mode config.Mode, remote, rules Generator) *Selector {
	return &Selector{mode: mode, remote: remote, rules: rules}
}

// Generate produces the reply for an inbound message. In remote mode the
// outcome depends on how the remote call fails:
//
//   - success: remote text, tagged with the model identifier
//   - credential rejected: fixed operator notice, tagged as a config error
//   - rate limited, empty completion, any other failure: rule-based text,
//     tagged as rules, with the demotion logged
func (s *Selector) Generate(ctx context.Context, inbound store.Message, history []store.Message) Reply {
	switch s.mode {
	case config.ModeRules:
		return Reply{Text: s.generateRules(ctx, inbound, history), GeneratedBy: GeneratedByRules}
	case config.ModeRemote:
		text, err := s.tryRemote(ctx, inbound, history)
		if err == nil {
			return Reply{Text: text, GeneratedBy: GeneratedByModel}
		}
		if errors.Is(err, ErrAuth) {
			slog.Error("Remote generator credential rejected", "conversation", inbound.ConversationID, "error", err)
			return Reply{Text: configErrorNotice, GeneratedBy: GeneratedByConfigError}
		}
		slog.Warn("Remote generator demoted to rules", "conversation", inbound.ConversationID, "error", err)
		return Reply{Text: s.generateRules(ctx, inbound, history), GeneratedBy: GeneratedByRules}
	default:
		// Disabled mode never reaches the selector; answer with rules so a
		// misrouted call still yields usable text.
		return Reply{Text: s.generateRules(ctx, inbound, history), GeneratedBy: GeneratedByRules}
	}
}

// tryRemote invokes the remote generator, converting panics into errors so a
// bug in a generator is handled like any transient failure.
func (s *Selector) tryRemote(ctx context.Context, inbound store.Message, history []store.Message) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote generator panic: %v", r)
		}
	}()
	text, err = s.remote.Generate(ctx, inbound, history)
	if err == nil && text == "" {
		err = ErrEmptyCompletion
	}
	return text, err
}

// generateRules invokes the rule generator, guarding against a panicking or
// empty implementation with the default greeting.
func (s *Selector) generateRules(ctx context.Context, inbound store.Message, history []store.Message) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Rule generator panic", "conversation", inbound.ConversationID, "panic", r)
			text = defaultGreeting
		}
	}()
	text, err := s.rules.Generate(ctx, inbound, history)
	if err != nil || text == "" {
		return defaultGreeting
	}
	return text
}
