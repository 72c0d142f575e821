// Package engine drives the periodic conversation-reply cycle: it polls the
// message store, finds conversations with unanswered inbound messages,
// generates replies and advances per-conversation watermarks.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/InnClaw/InnClaw/internal/bus"
	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/reply"
	"github.com/InnClaw/InnClaw/internal/store"
)

// Status is a snapshot of the engine's runtime state.
type Status struct {
	Running         bool        `json:"running"`
	Mode            config.Mode `json:"mode"`
	CyclesRun       uint64      `json:"cycles_run"`
	RepliesAppended uint64      `json:"replies_appended"`
	LastCycleAt     time.Time   `json:"last_cycle_at,omitempty"`
	LastError       string      `json:"last_error,omitempty"`
}

// Engine owns the reply loop. Configuration is re-read through loadConfig on
// every tick, so edits take effect without a restart.
type Engine struct {
	loadConfig func() (*config.Config, error)
	store      store.Store
	bus        *bus.Bus
	client     *http.Client

	// test seams
	now   func() time.Time
	sleep func(time.Duration)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status
}

// New creates an engine. The bus is optional; a nil bus disables event
// fan-out.
func New(loadConfig func() (*config.Config, error), st store.Store, b *bus.Bus) *Engine {
	return &Engine{
		loadConfig: loadConfig,
		store:      st,
		bus:        b,
		client:     &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Start launches the tick loop. Calling Start while the engine is already
// running is a no-op. Start never blocks.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	e.status.Running = true
	go e.loop(ctx, e.done)
	slog.Info("Reply engine started")
}

// Stop cancels the tick loop. An in-flight cycle is allowed to finish; Stop
// does not wait for it. Calling Stop on a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.cancel()
	e.running = false
	e.status.Running = false
	slog.Info("Reply engine stopping")
}

// Done returns a channel closed when the loop goroutine has exited.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Run starts the engine, blocks until the context is cancelled, then stops it
// and waits for the loop to exit.
func (e *Engine) Run(ctx context.Context) error {
	e.Start()
	<-ctx.Done()
	e.Stop()
	<-e.Done()
	return ctx.Err()
}

// Status returns a snapshot of the runtime counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// loop is the fixed-delay timer: the next tick is scheduled only after the
// previous cycle completes, so cycles never overlap. A slow cycle delays the
// next tick rather than stacking a concurrent one.
func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		interval := e.tickInterval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Reply engine stopped")
			return
		case <-timer.C:
			e.cycle(ctx)
		}
	}
}

// tickInterval reads the current interval, falling back to the default when
// configuration cannot be loaded.
func (e *Engine) tickInterval() time.Duration {
	cfg, err := e.loadConfig()
	if err != nil || cfg.Engine.TickInterval <= 0 {
		return config.DefaultConfig().Engine.TickInterval
	}
	return cfg.Engine.TickInterval
}

// cycle runs one processing cycle, containing panics and errors so that a
// bad cycle never terminates the loop.
func (e *Engine) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Reply cycle panicked", "panic", r)
			e.recordCycle(fmt.Sprintf("panic: %v", r), 0)
		}
	}()
	replies, err := e.runCycle(ctx)
	if err != nil {
		slog.Error("Reply cycle failed", "error", err)
		e.recordCycle(err.Error(), replies)
		return
	}
	e.recordCycle("", replies)
}

func (e *Engine) recordCycle(errText string, replies int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.CyclesRun++
	e.status.RepliesAppended += uint64(replies)
	e.status.LastCycleAt = e.now()
	e.status.LastError = errText
}

// runCycle executes one pass over the message log: group by conversation,
// pick the latest unanswered inbound message past each watermark, generate a
// reply for every eligible conversation, append the batch, then advance the
// watermarks. Watermarks move only after the append succeeded.
func (e *Engine) runCycle(ctx context.Context) (int, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return 0, fmt.Errorf("load config: %w", err)
	}
	e.mu.Lock()
	e.status.Mode = cfg.Engine.Mode
	e.mu.Unlock()

	if cfg.Engine.Mode == config.ModeDisabled {
		slog.Debug("Reply cycle skipped: engine disabled")
		return 0, nil
	}

	msgs, err := e.store.ListMessages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}

	rules := reply.NewRules()
	var remote reply.Generator
	if cfg.Engine.Mode == config.ModeRemote {
		remote = reply.NewRemote(cfg, e.client)
	}
	sel := reply.NewSelector(cfg.Engine.Mode, remote, rules)

	groups := groupByConversation(msgs)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := e.now()
	var batch []store.Message
	type advance struct {
		conversationID string
		ts             time.Time
	}
	var advances []advance
	remoteCalls := 0

	for _, id := range ids {
		if !Eligible(cfg.Engine, id, now) {
			continue
		}
		wm, _, err := e.store.GetWatermark(ctx, id)
		if err != nil {
			slog.Error("Watermark read failed", "conversation", id, "error", err)
			continue
		}
		inbound, ok := latestUnprocessedInbound(groups[id], wm)
		if !ok {
			continue
		}
		e.publish(bus.Event{
			Kind:           bus.EventInboundObserved,
			ConversationID: id,
			MessageID:      inbound.ID,
			Text:           inbound.Text,
			Timestamp:      inbound.Timestamp,
		})

		// Voluntary pacing between remote calls within one cycle, to
		// soften burst pressure on the completion API.
		if cfg.Engine.Mode == config.ModeRemote && remoteCalls > 0 && cfg.Engine.PacingDelay > 0 {
			e.sleep(cfg.Engine.PacingDelay)
		}
		rep := sel.Generate(ctx, inbound, historyBefore(groups[id], inbound))
		if cfg.Engine.Mode == config.ModeRemote {
			remoteCalls++
		}

		out := store.Message{
			ID:             uuid.NewString(),
			ConversationID: id,
			Direction:      store.DirectionOutbound,
			Text:           rep.Text,
			Timestamp:      e.now(),
			GeneratedBy:    rep.GeneratedBy,
		}
		batch = append(batch, out)
		advances = append(advances, advance{conversationID: id, ts: inbound.Timestamp})
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if err := e.store.AppendMessages(ctx, batch); err != nil {
		return 0, fmt.Errorf("append replies: %w", err)
	}
	for i, adv := range advances {
		if err := e.store.AdvanceWatermark(ctx, adv.conversationID, adv.ts); err != nil {
			slog.Error("Watermark advance failed", "conversation", adv.conversationID, "error", err)
			continue
		}
		out := batch[i]
		kind := bus.EventReplyAppended
		if out.GeneratedBy == reply.GeneratedByConfigError {
			kind = bus.EventReplyDegraded
		}
		e.publish(bus.Event{
			Kind:           kind,
			ConversationID: out.ConversationID,
			MessageID:      out.ID,
			GeneratedBy:    out.GeneratedBy,
			Text:           out.Text,
			Timestamp:      out.Timestamp,
		})
		slog.Info("Reply appended",
			"conversation", out.ConversationID,
			"generated_by", out.GeneratedBy)
	}
	return len(batch), nil
}

func (e *Engine) publish(ev bus.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ev)
}
