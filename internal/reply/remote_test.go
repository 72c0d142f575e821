package reply

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/store"
)

func testRemote(t *testing.T, handler http.HandlerFunc) *Remote {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "sk-test"
	cfg.Provider.APIBase = srv.URL
	return NewRemote(cfg, srv.Client())
}

func completionResponse(text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
	})
	return b
}

func TestRemoteSuccess(t *testing.T) {
	var gotBody map[string]any
	r := testRemote(t, func(w http.ResponseWriter, req *http.Request) {
		if auth := req.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("missing bearer credential, got %q", auth)
		}
		_ = json.NewDecoder(req.Body).Decode(&gotBody)
		w.Write(completionResponse("We are open all night."))
	})

	text, err := r.Generate(context.Background(), store.Message{Text: "Are you open?"}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "We are open all night." {
		t.Errorf("text = %q", text)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user message, got %d", len(msgs))
	}
}

func TestRemoteErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, c := range cases {
		r := testRemote(t, func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(c.status)
		})
		_, err := r.Generate(context.Background(), store.Message{Text: "hi"}, nil)
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: got %v, want %v", c.status, err, c.want)
		}
	}
}

func TestRemoteServerErrorIsNotClassified(t *testing.T) {
	r := testRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := r.Generate(context.Background(), store.Message{Text: "hi"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrRateLimited) {
		t.Errorf("500 must be an unclassified error, got %v", err)
	}
}

func TestRemoteEmptyCompletion(t *testing.T) {
	r := testRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write(completionResponse("   "))
	})
	_, err := r.Generate(context.Background(), store.Message{Text: "hi"}, nil)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("got %v, want ErrEmptyCompletion", err)
	}
}

func TestRemoteHistoryWindow(t *testing.T) {
	var gotBody struct {
		Messages []apiMessage `json:"messages"`
	}
	r := testRemote(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&gotBody)
		w.Write(completionResponse("ok"))
	})

	base := time.Now()
	var history []store.Message
	for i := 0; i < 10; i++ {
		dir := store.DirectionInbound
		if i%2 == 1 {
			dir = store.DirectionOutbound
		}
		history = append(history, store.Message{
			Text:      string(rune('a' + i)),
			Direction: dir,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	if _, err := r.Generate(context.Background(), store.Message{Text: "latest"}, history); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// system + 5 most recent history entries + the inbound message.
	if len(gotBody.Messages) != 7 {
		t.Fatalf("expected 7 api messages, got %d", len(gotBody.Messages))
	}
	if gotBody.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotBody.Messages[0].Role)
	}
	if got := gotBody.Messages[1].Content; got != "f" {
		t.Errorf("window start = %q, want f (most recent five)", got)
	}
	// "f" is an outbound history entry, presented as an assistant turn.
	if gotBody.Messages[1].Role != "assistant" {
		t.Errorf("outbound history role = %q, want assistant", gotBody.Messages[1].Role)
	}
	last := gotBody.Messages[len(gotBody.Messages)-1]
	if last.Role != "user" || last.Content != "latest" {
		t.Errorf("last message = %+v, want the inbound text as user", last)
	}
}
