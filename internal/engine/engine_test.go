package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/reply"
	"github.com/InnClaw/InnClaw/internal/store"
)

func testConfig(mode config.Mode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.Mode = mode
	cfg.Engine.BusinessHoursStart = 0
	cfg.Engine.BusinessHoursEnd = 24
	cfg.Engine.PacingDelay = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	eng := New(func() (*config.Config, error) { return cfg, nil }, st, nil)
	return eng, st
}

func seedInbound(t *testing.T, st store.Store, conv string, base time.Time, texts ...string) time.Time {
	t.Helper()
	var msgs []store.Message
	ts := base
	for i, text := range texts {
		ts = base.Add(time.Duration(i) * time.Second)
		msgs = append(msgs, store.Message{
			ID:             conv + "-" + text,
			ConversationID: conv,
			Direction:      store.DirectionInbound,
			Text:           text,
			Timestamp:      ts,
		})
	}
	if err := st.AppendMessages(context.Background(), msgs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ts
}

func outboundOf(t *testing.T, st store.Store, conv string) []store.Message {
	t.Helper()
	msgs, err := st.ListMessages(context.Background())
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	var out []store.Message
	for _, m := range msgs {
		if m.ConversationID == conv && m.Direction == store.DirectionOutbound {
			out = append(out, m)
		}
	}
	return out
}

func TestBurstCoalescing(t *testing.T) {
	cfg := testConfig(config.ModeRules)
	eng, st := newTestEngine(t, cfg)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := seedInbound(t, st, "C1", base, "Hi", "Are you open?", "What's the price?")

	if _, err := eng.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	out := outboundOf(t, st, "C1")
	if len(out) != 1 {
		t.Fatalf("outbound count = %d, want exactly 1 for a burst", len(out))
	}
	if !strings.Contains(out[0].Text, "room rates") {
		t.Errorf("reply %q does not answer the latest (price) message", out[0].Text)
	}
	if out[0].GeneratedBy != reply.GeneratedByRules {
		t.Errorf("generated_by = %q, want rules", out[0].GeneratedBy)
	}

	wm, ok, err := st.GetWatermark(context.Background(), "C1")
	if err != nil || !ok {
		t.Fatalf("GetWatermark: ok=%v err=%v", ok, err)
	}
	if !wm.Equal(last) {
		t.Errorf("watermark = %v, want timestamp of the newest inbound %v", wm, last)
	}
}

func TestDisabledModeDoesNothing(t *testing.T) {
	cfg := testConfig(config.ModeDisabled)
	eng, st := newTestEngine(t, cfg)
	seedInbound(t, st, "C1", time.Now().Add(-time.Minute), "Hi", "Are you open?")

	for i := 0; i < 3; i++ {
		if _, err := eng.runCycle(context.Background()); err != nil {
			t.Fatalf("runCycle: %v", err)
		}
	}
	if out := outboundOf(t, st, "C1"); len(out) != 0 {
		t.Errorf("disabled mode appended %d outbound messages", len(out))
	}
	if _, ok, _ := st.GetWatermark(context.Background(), "C1"); ok {
		t.Error("disabled mode must not create watermarks")
	}
}

func TestRepeatedTickNoNewMessages(t *testing.T) {
	cfg := testConfig(config.ModeRules)
	eng, st := newTestEngine(t, cfg)
	last := seedInbound(t, st, "C1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), "breakfast?")

	for i := 0; i < 3; i++ {
		if _, err := eng.runCycle(context.Background()); err != nil {
			t.Fatalf("runCycle %d: %v", i, err)
		}
	}
	if out := outboundOf(t, st, "C1"); len(out) != 1 {
		t.Errorf("outbound count = %d after repeated ticks, want 1", len(out))
	}
	wm, _, _ := st.GetWatermark(context.Background(), "C1")
	if !wm.Equal(last) {
		t.Errorf("watermark drifted to %v, want %v", wm, last)
	}
}

func TestExcludedConversationSkipped(t *testing.T) {
	cfg := testConfig(config.ModeRules)
	cfg.Engine.Exclusions = []string{"C-optout"}
	eng, st := newTestEngine(t, cfg)
	seedInbound(t, st, "C-optout", time.Now().Add(-time.Minute), "Hi")
	seedInbound(t, st, "C-ok", time.Now().Add(-time.Minute), "Hi")

	if _, err := eng.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if out := outboundOf(t, st, "C-optout"); len(out) != 0 {
		t.Error("excluded conversation received a reply")
	}
	if out := outboundOf(t, st, "C-ok"); len(out) != 1 {
		t.Error("non-excluded conversation received no reply")
	}
}

func TestRemoteAuthErrorSurfacedInConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := testConfig(config.ModeRemote)
	cfg.Provider.APIKey = "bad-key"
	cfg.Provider.APIBase = srv.URL
	eng, st := newTestEngine(t, cfg)
	seedInbound(t, st, "C1", time.Now().Add(-time.Minute), "Hi")

	if _, err := eng.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	out := outboundOf(t, st, "C1")
	if len(out) != 1 {
		t.Fatalf("outbound count = %d, want 1", len(out))
	}
	if out[0].GeneratedBy != reply.GeneratedByConfigError {
		t.Errorf("generated_by = %q, want config-error", out[0].GeneratedBy)
	}
}

func TestPacingBetweenRemoteCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig(config.ModeRemote)
	cfg.Provider.APIKey = "key"
	cfg.Provider.APIBase = srv.URL
	cfg.Engine.PacingDelay = 25 * time.Millisecond
	eng, st := newTestEngine(t, cfg)

	slept := 0
	eng.sleep = func(time.Duration) { slept++ }

	base := time.Now().Add(-time.Minute)
	seedInbound(t, st, "C1", base, "Hi")
	seedInbound(t, st, "C2", base, "Hi")
	seedInbound(t, st, "C3", base, "Hi")

	if _, err := eng.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if slept != 2 {
		t.Errorf("pacing sleeps = %d, want 2 for three remote calls", slept)
	}
}

// panicStore wraps a Store and panics on ListMessages.
type panicStore struct {
	store.Store
}

func (panicStore) ListMessages(context.Context) ([]store.Message, error) {
	panic("storage exploded")
}

func TestCyclePanicDoesNotKillLoop(t *testing.T) {
	cfg := testConfig(config.ModeRules)
	eng, st := newTestEngine(t, cfg)
	eng.store = panicStore{st}

	eng.cycle(context.Background())

	status := eng.Status()
	if status.CyclesRun != 1 {
		t.Errorf("cycles_run = %d, want 1", status.CyclesRun)
	}
	if !strings.Contains(status.LastError, "panic") {
		t.Errorf("last_error = %q, want a recorded panic", status.LastError)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	cfg := testConfig(config.ModeDisabled)
	cfg.Engine.TickInterval = 10 * time.Millisecond
	eng, _ := newTestEngine(t, cfg)

	eng.Start()
	eng.Start()
	if !eng.Status().Running {
		t.Error("engine should report running after Start")
	}

	eng.Stop()
	eng.Stop()
	select {
	case <-eng.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	if eng.Status().Running {
		t.Error("engine should report stopped after Stop")
	}
}
