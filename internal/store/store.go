// Package store provides the conversation message repository and the
// per-conversation watermark persistence used by the reply engine.
package store

import (
	"context"
	"time"
)

// Direction marks a message as inbound (from the guest) or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is a single communication unit in a conversation. Messages are
// append-only: never mutated and never deleted by this subsystem.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      Direction `json:"direction"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	// GeneratedBy identifies the generator that produced an outbound
	// message. Empty for inbound and for human-authored outbound messages.
	GeneratedBy string `json:"generated_by,omitempty"`
}

// Store is the repository interface the engine depends on. Implementations
// must keep AppendMessages idempotent on message ID and AdvanceWatermark
// monotonic per conversation.
type Store interface {
	// ListMessages returns the full message log ordered by conversation,
	// then timestamp.
	ListMessages(ctx context.Context) ([]Message, error)
	// AppendMessages appends the batch. Messages whose ID already exists
	// are skipped.
	AppendMessages(ctx context.Context, msgs []Message) error
	// ListOutboundSince returns outbound messages with a timestamp strictly
	// after the given instant, oldest first.
	ListOutboundSince(ctx context.Context, since time.Time) ([]Message, error)
	// GetWatermark returns the last-processed timestamp for a conversation.
	// ok is false when no watermark exists yet.
	GetWatermark(ctx context.Context, conversationID string) (ts time.Time, ok bool, err error)
	// AdvanceWatermark moves the watermark forward to ts. Calls with a
	// timestamp at or below the stored value are no-ops.
	AdvanceWatermark(ctx context.Context, conversationID string, ts time.Time) error
	Close() error
}
