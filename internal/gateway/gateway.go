// Package gateway exposes the HTTP surface of the reply engine: channel
// bridges push inbound guest messages in and poll generated replies out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/InnClaw/InnClaw/internal/bus"
	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/engine"
	"github.com/InnClaw/InnClaw/internal/store"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg    config.GatewayConfig
	store  store.Store
	engine *engine.Engine
	bus    *bus.Bus
	http   *http.Server
}

// New creates a gateway server. The engine is optional and only feeds the
// status endpoint; the bus is optional and only feeds event fan-out.
func New(cfg config.GatewayConfig, st store.Store, eng *engine.Engine, b *bus.Bus) *Server {
	s := &Server{cfg: cfg, store: st, engine: eng, bus: b}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/messages/inbound", s.handleInbound)
	mux.HandleFunc("/api/v1/messages/outbound", s.handleOutbound)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", "addr", s.cfg.Addr())
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// authorized checks the bearer token. An empty configured token means open
// access, intended for loopback-only deployments.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return token == s.cfg.AuthToken
}

type inboundRequest struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "conversation_id and text required", http.StatusBadRequest)
		return
	}
	// A caller-supplied id makes retries idempotent: the store skips ids
	// it has already seen.
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	msg := store.Message{
		ID:             req.ID,
		ConversationID: req.ConversationID,
		Direction:      store.DirectionInbound,
		Text:           req.Text,
		Timestamp:      req.Timestamp,
	}
	if err := s.store.AppendMessages(r.Context(), []store.Message{msg}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:           bus.EventInboundObserved,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Text:           msg.Text,
			Timestamp:      msg.Timestamp,
		})
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": msg.ID})
}

func (s *Server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		since = t
	}
	msgs, err := s.store.ListOutboundSince(r.Context(), since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var st engine.Status
	if s.engine != nil {
		st = s.engine.Status()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
