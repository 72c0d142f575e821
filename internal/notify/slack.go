// Package notify fans conversation events out to operator-facing channels.
// All delivery is best-effort: a failed notification is logged, never
// propagated back into the reply loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/InnClaw/InnClaw/internal/bus"
)

// Slack posts an operator alert when the engine degrades a reply, typically
// because the provider credential was rejected.
type Slack struct {
	api     *slack.Client
	channel string
}

// SlackOption customizes the underlying client, mainly for tests.
type SlackOption = slack.Option

// NewSlack creates the notifier. Returns nil when token or channel is unset,
// which disables Slack alerting.
func NewSlack(token, channel string, opts ...SlackOption) *Slack {
	if token == "" || channel == "" {
		return nil
	}
	opts = append([]slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: 15 * time.Second}),
	}, opts...)
	return &Slack{
		api:     slack.New(token, opts...),
		channel: channel,
	}
}

// HandleEvent is subscribed to the event bus. Only degraded replies alert the
// operators; routine traffic stays out of Slack.
func (s *Slack) HandleEvent(ev bus.Event) {
	if s == nil || ev.Kind != bus.EventReplyDegraded {
		return
	}
	text := fmt.Sprintf(
		":warning: Automated reply degraded for conversation `%s` (generated_by=%s):\n> %s",
		ev.ConversationID, ev.GeneratedBy, ev.Text,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		slog.Warn("Slack alert failed", "channel", s.channel, "error", err)
		return
	}
	slog.Info("Slack alert sent", "channel", s.channel, "conversation", ev.ConversationID)
}
