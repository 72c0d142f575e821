package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/store"
)

// Remote-call failure classes. The selector keys its fallback policy off
// these sentinels via errors.Is.
var (
	// ErrAuth means the API credential was rejected (401/403).
	ErrAuth = errors.New("remote credential rejected")
	// ErrRateLimited means the API throttled the request (429).
	ErrRateLimited = errors.New("remote rate limited")
	// ErrEmptyCompletion means the API answered 2xx with no usable text.
	ErrEmptyCompletion = errors.New("remote returned empty completion")
)

// Remote calls an OpenAI-compatible chat-completions API to generate a reply
// from a bounded conversation context plus a fixed system prompt.
type Remote struct {
	apiKey        string
	apiBase       string
	model         string
	maxTokens     int
	temperature   float64
	systemPrompt  string
	historyWindow int
	httpClient    *http.Client
}

// NewRemote builds a remote generator from the current configuration.
// Construction is cheap; the engine rebuilds one each cycle so configuration
// changes take effect on the next tick.
func NewRemote(cfg *config.Config, client *http.Client) *Remote {
	base := strings.TrimSuffix(cfg.Provider.APIBase, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Remote{
		apiKey:        cfg.Provider.APIKey,
		apiBase:       base,
		model:         cfg.Model.Name,
		maxTokens:     cfg.Model.MaxTokens,
		temperature:   cfg.Model.Temperature,
		systemPrompt:  cfg.Model.SystemPrompt,
		historyWindow: cfg.Engine.HistoryWindow,
		httpClient:    client,
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate requests a completion for the inbound message. Failures are
// classified so the caller can distinguish misconfiguration from throttling
// and transient errors.
func (r *Remote) Generate(ctx context.Context, inbound store.Message, history []store.Message) (string, error) {
	body := map[string]any{
		"model":       r.model,
		"messages":    r.buildMessages(inbound, history),
		"max_tokens":  r.maxTokens,
		"temperature": r.temperature,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w (status %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w (status %d)", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// buildMessages assembles system prompt + recent history + the new inbound
// text, capping history at the configured window.
func (r *Remote) buildMessages(inbound store.Message, history []store.Message) []apiMessage {
	msgs := []apiMessage{{Role: "system", Content: r.systemPrompt}}

	window := history
	if r.historyWindow > 0 && len(window) > r.historyWindow {
		window = window[len(window)-r.historyWindow:]
	}
	for _, h := range window {
		role := "user"
		if h.Direction == store.DirectionOutbound {
			role = "assistant"
		}
		msgs = append(msgs, apiMessage{Role: role, Content: h.Text})
	}
	return append(msgs, apiMessage{Role: "user", Content: inbound.Text})
}
