package engine

import (
	"sort"
	"time"

	"github.com/InnClaw/InnClaw/internal/store"
)

// latestUnprocessedInbound returns the newest inbound message in the slice
// with a timestamp past the watermark, or false when none qualifies. A zero
// watermark means the conversation has never been processed, so any inbound
// message qualifies. Intermediate messages of a burst are deliberately
// skipped: the reply addresses the most current guest state, one reply per
// burst.
func latestUnprocessedInbound(msgs []store.Message, watermark time.Time) (store.Message, bool) {
	var best store.Message
	found := false
	for _, m := range msgs {
		if m.Direction != store.DirectionInbound {
			continue
		}
		if !m.Timestamp.After(watermark) {
			continue
		}
		if !found || m.Timestamp.After(best.Timestamp) {
			best = m
			found = true
		}
	}
	return best, found
}

// historyBefore returns the conversation's messages other than the inbound
// message being answered, ordered by timestamp. The remote generator trims
// this to its context window.
func historyBefore(msgs []store.Message, inbound store.Message) []store.Message {
	out := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == inbound.ID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// groupByConversation splits the flat message log per conversation.
func groupByConversation(msgs []store.Message) map[string][]store.Message {
	groups := make(map[string][]store.Message)
	for _, m := range msgs {
		groups[m.ConversationID] = append(groups[m.ConversationID], m)
	}
	return groups
}
