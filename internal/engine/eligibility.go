package engine

import (
	"time"

	"github.com/InnClaw/InnClaw/internal/config"
)

// Eligible reports whether a conversation may receive an automated reply at
// the given time. Exclusion wins over business hours: an excluded conversation
// is never eligible.
func Eligible(cfg config.EngineConfig, conversationID string, now time.Time) bool {
	if cfg.Excluded(conversationID) {
		return false
	}
	return withinHours(cfg.BusinessHoursStart, cfg.BusinessHoursEnd, now.Hour())
}

// withinHours checks the half-open local-hour interval [start, end). A start
// greater than end is an overnight window: hour >= start or hour < end.
// Start equal to end is treated as always open.
func withinHours(start, end, hour int) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}
