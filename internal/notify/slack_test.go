package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"github.com/InnClaw/InnClaw/internal/bus"
)

func TestNewSlackDisabledWithoutConfig(t *testing.T) {
	if s := NewSlack("", "ops"); s != nil {
		t.Error("missing token should disable the notifier")
	}
	if s := NewSlack("xoxb-token", ""); s != nil {
		t.Error("missing channel should disable the notifier")
	}
	// A nil notifier must be safe to call.
	var s *Slack
	s.HandleEvent(bus.Event{Kind: bus.EventReplyDegraded})
}

func TestSlackAlertsOnDegradedOnly(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "chat.postMessage") {
			posts++
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1"}`))
	}))
	defer srv.Close()

	s := NewSlack("xoxb-token", "C123", slack.OptionAPIURL(srv.URL+"/"))
	if s == nil {
		t.Fatal("notifier should be enabled")
	}

	s.HandleEvent(bus.Event{Kind: bus.EventReplyAppended, ConversationID: "c1"})
	if posts != 0 {
		t.Errorf("routine reply triggered %d Slack posts, want 0", posts)
	}

	s.HandleEvent(bus.Event{
		Kind:           bus.EventReplyDegraded,
		ConversationID: "c1",
		GeneratedBy:    "config-error",
		Text:           "credential rejected",
	})
	if posts != 1 {
		t.Errorf("degraded reply triggered %d Slack posts, want 1", posts)
	}
}
