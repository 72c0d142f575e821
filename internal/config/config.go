// Package config provides configuration types and loading for innclaw.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the reply engine generates answers.
type Mode string

const (
	// ModeDisabled turns the engine off; ticks do no work.
	ModeDisabled Mode = "disabled"
	// ModeRules answers with the keyword rule set only.
	ModeRules Mode = "rules"
	// ModeRemote answers with the remote model, demoting to rules on failure.
	ModeRemote Mode = "remote"
)

// ParseMode validates a mode string, defaulting empty input to disabled.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDisabled:
		return ModeDisabled, nil
	case ModeRules:
		return ModeRules, nil
	case ModeRemote:
		return ModeRemote, nil
	default:
		return "", fmt.Errorf("unknown engine mode %q (want disabled, rules or remote)", s)
	}
}

// Config is the root configuration struct.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Engine   EngineConfig   `json:"engine"`
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
	Gateway  GatewayConfig  `json:"gateway"`
	Bridge   BridgeConfig   `json:"bridge"`
	Notify   NotifyConfig   `json:"notify"`
}

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// EngineConfig governs the reply engine's scheduling and eligibility rules.
type EngineConfig struct {
	Mode         Mode          `json:"mode" envconfig:"MODE"`
	TickInterval time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	// BusinessHoursStart/End form a half-open local-hour interval. Start
	// greater than End means an overnight window, e.g. 22 -> 6.
	BusinessHoursStart int `json:"businessHoursStart" envconfig:"BUSINESS_HOURS_START"`
	BusinessHoursEnd   int `json:"businessHoursEnd" envconfig:"BUSINESS_HOURS_END"`
	// Exclusions lists conversation ids opted out of automated replies.
	Exclusions []string `json:"exclusions"`
	// PacingDelay is slept after each remote call when a cycle serves
	// several conversations, to soften burst pressure on the remote API.
	PacingDelay time.Duration `json:"pacingDelay" envconfig:"PACING_DELAY"`
	// HistoryWindow bounds the conversation context sent to the remote model.
	HistoryWindow int `json:"historyWindow" envconfig:"HISTORY_WINDOW"`
}

// Excluded reports whether a conversation id is on the exclusion list.
func (e EngineConfig) Excluded(conversationID string) bool {
	for _, id := range e.Exclusions {
		if id == conversationID {
			return true
		}
	}
	return false
}

// ModelConfig groups remote model generation parameters.
type ModelConfig struct {
	Name         string  `json:"name" envconfig:"MODEL"`
	MaxTokens    int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature  float64 `json:"temperature" envconfig:"TEMPERATURE"`
	SystemPrompt string  `json:"systemPrompt" envconfig:"SYSTEM_PROMPT"`
}

// ProviderConfig contains the remote completion API credentials.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// GatewayConfig contains the HTTP gateway settings.
type GatewayConfig struct {
	Host      string `json:"host" envconfig:"HOST"`
	Port      int    `json:"port" envconfig:"PORT"`
	AuthToken string `json:"authToken" envconfig:"AUTH_TOKEN"`
}

// Addr returns the host:port listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// BridgeConfig configures the WhatsApp channel bridge.
type BridgeConfig struct {
	Enabled         bool          `json:"enabled" envconfig:"BRIDGE_ENABLED"`
	GatewayBase     string        `json:"gatewayBase" envconfig:"BRIDGE_GATEWAY_BASE"`
	AllowFrom       []string      `json:"allowFrom"`
	IgnoreReactions bool          `json:"ignoreReactions" envconfig:"BRIDGE_IGNORE_REACTIONS"`
	PollInterval    time.Duration `json:"pollInterval" envconfig:"BRIDGE_POLL_INTERVAL"`
}

// NotifyConfig configures the alert fan-out collaborators.
type NotifyConfig struct {
	SlackToken   string `json:"slackToken" envconfig:"SLACK_TOKEN"`
	SlackChannel string `json:"slackChannel" envconfig:"SLACK_CHANNEL"`
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `json:"kafkaTopic" envconfig:"KAFKA_TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.innclaw",
		},
		Engine: EngineConfig{
			Mode:               ModeDisabled,
			TickInterval:       3 * time.Second,
			BusinessHoursStart: 8,
			BusinessHoursEnd:   22,
			PacingDelay:        500 * time.Millisecond,
			HistoryWindow:      5,
		},
		Model: ModelConfig{
			Name:         "gpt-4o-mini",
			MaxTokens:    512,
			Temperature:  0.7,
			SystemPrompt: "You are the front-desk assistant of a small hotel. Answer guest messages briefly and politely.",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18890,
		},
		Bridge: BridgeConfig{
			GatewayBase:  "http://127.0.0.1:18890",
			PollInterval: 2 * time.Second,
		},
		Notify: NotifyConfig{
			KafkaTopic: "innclaw.conversation-events",
		},
	}
}
