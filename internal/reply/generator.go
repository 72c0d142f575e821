// Package reply implements the reply generators and the fallback policy
// that chooses between them.
package reply

import (
	"context"

	"github.com/InnClaw/InnClaw/internal/store"
)

// Generator tags recorded on outbound messages.
const (
	GeneratedByRules = "rules"
	GeneratedByModel = "llm"
	// GeneratedByConfigError marks the operator-facing notice appended when
	// the remote credential is rejected.
	GeneratedByConfigError = "config-error"
)

// Generator produces a reply for an inbound message given the conversation
// history (oldest first, not including the inbound message itself).
type Generator interface {
	Generate(ctx context.Context, inbound store.Message, history []store.Message) (string, error)
}

// Reply is the outcome of the selector: non-empty text plus a tag naming
// what produced it.
type Reply struct {
	Text        string
	GeneratedBy string
}
