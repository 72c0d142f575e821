// channelbridge links a WhatsApp account to the innclaw gateway: inbound
// guest messages are forwarded to the gateway's inbound endpoint, and replies
// generated by the engine are polled back and delivered over WhatsApp.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"

	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/store"
)

type bridge struct {
	cfg       *config.Config
	client    *whatsmeow.Client
	container *sqlstore.Container
	http      *http.Client

	mu       sync.Mutex
	lastPoll time.Time
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Bridge.Enabled {
		fmt.Println("Bridge is disabled; set bridge.enabled in the config to run it.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &bridge{
		cfg:      cfg,
		http:     &http.Client{Timeout: 30 * time.Second},
		lastPoll: time.Now(),
	}
	if err := b.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bridge failed: %v\n", err)
		os.Exit(1)
	}
	defer b.stop()

	go b.pollOutbound(ctx)

	<-ctx.Done()
	fmt.Println("channelbridge shutting down")
}

func (b *bridge) start(ctx context.Context) error {
	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "INFO", true)

	dataDir := b.cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "whatsapp.db")
	container, err := sqlstore.New(ctx, "sqlite",
		"file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("init whatsapp db: %w", err)
	}
	b.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get device: %w", err)
	}
	b.client = whatsmeow.NewClient(deviceStore, clientLog)
	b.client.AddEventHandler(b.eventHandler)

	if b.client.Store.ID == nil {
		qrChan, _ := b.client.GetQRChannel(context.Background())
		if err := b.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		fmt.Println("WhatsApp: Scan this QR code to login:")
		for evt := range qrChan {
			if evt.Event == "code" {
				qrPath := filepath.Join(dataDir, "whatsapp-qr.png")
				if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err == nil {
					fmt.Printf("\n🖼️  WhatsApp Login QR Code saved to: %s\n", qrPath)
					fmt.Println("Open this file and scan it with your phone.")
				}
			} else {
				fmt.Println("WhatsApp: Login event:", evt.Event)
			}
		}
	} else {
		if err := b.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		fmt.Println("WhatsApp: Connected")
	}
	return nil
}

func (b *bridge) stop() {
	if b.client != nil {
		b.client.Disconnect()
	}
	if b.container != nil {
		b.container.Close()
	}
}

func (b *bridge) eventHandler(evt interface{}) {
	v, ok := evt.(*events.Message)
	if !ok {
		return
	}
	// Never forward our own outbound traffic back into the engine.
	if v.Info.IsFromMe {
		return
	}

	content := ""
	if v.Message.GetConversation() != "" {
		content = v.Message.GetConversation()
	} else if v.Message.GetExtendedTextMessage().GetText() != "" {
		content = v.Message.GetExtendedTextMessage().GetText()
	}
	if content == "" {
		return
	}
	if shouldDropSystemNoise(content) {
		return
	}
	if b.cfg.Bridge.IgnoreReactions && shouldDropReaction(content) {
		return
	}
	if !b.allowed(v.Info.Sender.User) {
		slog.Warn("Bridge dropped message from unlisted sender", "sender", v.Info.Sender.User)
		return
	}

	if err := b.forwardInbound(v, content); err != nil {
		slog.Error("Bridge inbound forward failed", "error", err)
	}
}

// allowed checks the sender against the configured allowlist. An empty
// allowlist accepts everyone.
func (b *bridge) allowed(sender string) bool {
	if len(b.cfg.Bridge.AllowFrom) == 0 {
		return true
	}
	for _, a := range b.cfg.Bridge.AllowFrom {
		if a == sender {
			return true
		}
	}
	return false
}

// forwardInbound posts the message to the gateway. The WhatsApp message id
// doubles as the idempotency key, so redelivered events do not duplicate.
func (b *bridge) forwardInbound(v *events.Message, content string) error {
	payload, err := json.Marshal(map[string]any{
		"id":              "wa:" + v.Info.ID,
		"conversation_id": v.Info.Chat.String(),
		"text":            content,
		"timestamp":       v.Info.Timestamp,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost,
		b.cfg.Bridge.GatewayBase+"/api/v1/messages/inbound", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Gateway.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Gateway.AuthToken)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	slog.Info("Bridge forwarded inbound", "chat", v.Info.Chat.String())
	return nil
}

// pollOutbound fetches engine-generated replies and delivers them over
// WhatsApp. Only conversations whose id parses as a JID are deliverable from
// this bridge; anything else belongs to another channel.
func (b *bridge) pollOutbound(ctx context.Context) {
	interval := b.cfg.Bridge.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.deliverNew(ctx); err != nil {
				slog.Warn("Bridge outbound poll failed", "error", err)
			}
		}
	}
}

func (b *bridge) deliverNew(ctx context.Context) error {
	b.mu.Lock()
	since := b.lastPoll
	b.mu.Unlock()

	url := b.cfg.Bridge.GatewayBase + "/api/v1/messages/outbound?since=" +
		since.Format(time.RFC3339Nano)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if b.cfg.Gateway.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Gateway.AuthToken)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	var body struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	for _, msg := range body.Messages {
		if msg.Timestamp.After(since) {
			since = msg.Timestamp
		}
		jid, err := types.ParseJID(msg.ConversationID)
		if err != nil {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err = b.client.SendMessage(sendCtx, jid, &waE2E.Message{
			Conversation: proto.String(msg.Text),
		})
		cancel()
		if err != nil {
			slog.Error("Bridge send failed", "chat", msg.ConversationID, "error", err)
			continue
		}
		slog.Info("Bridge delivered reply", "chat", msg.ConversationID, "generated_by", msg.GeneratedBy)
	}

	b.mu.Lock()
	b.lastPoll = since
	b.mu.Unlock()
	return nil
}

// shouldDropSystemNoise filters raw protobuf-like payloads WhatsApp emits for
// security and sync events.
func shouldDropSystemNoise(content string) bool {
	if content == "" {
		return false
	}
	if strings.Contains(content, "messageContextInfo") &&
		strings.Contains(content, "{") &&
		strings.Contains(content, ":") {
		return true
	}
	return strings.Contains(content, "senderKeyDistributionMessage")
}

func shouldDropReaction(content string) bool {
	if content == "" {
		return false
	}
	return strings.Contains(content, "reactionMessage:{")
}
