package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/InnClaw/InnClaw/internal/bus"
)

// Kafka publishes every conversation event to a topic so downstream systems
// (dashboards, alerting, analytics) can follow the reply engine without
// polling the store.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates the publisher. Returns nil when brokers or topic is unset,
// which disables event publishing.
func NewKafka(brokers, topic string) *Kafka {
	if brokers == "" || topic == "" {
		return nil
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// HandleEvent is subscribed to the event bus. Events are keyed by
// conversation id so one conversation's events stay ordered on a partition.
func (k *Kafka) HandleEvent(ev bus.Event) {
	if k == nil {
		return
	}
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Kafka event encode failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: value,
		Time:  ev.Timestamp,
	})
	if err != nil {
		slog.Warn("Kafka event publish failed", "topic", k.writer.Topic, "error", err)
	}
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	if k == nil {
		return nil
	}
	return k.writer.Close()
}
